package tools

import (
	"context"
	"fmt"
	"sync"

	clierr "github.com/ggonzalez94/solchat/internal/errors"
	"github.com/ggonzalez94/solchat/internal/model"
	"github.com/ggonzalez94/solchat/internal/policy"
	"go.uber.org/zap"
)

// Handler executes one tool. Execute must be safe to repeat for the same
// arguments.
type Handler interface {
	Spec() model.ToolSpec
	Validate(args map[string]any) error
	Execute(ctx context.Context, args map[string]any) (model.ToolResult, error)
}

type Registry struct {
	mu        sync.RWMutex
	handlers  map[string]Handler
	order     []string
	allowlist []string
	logger    *zap.Logger
}

func NewRegistry(allowlist []string, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		handlers:  map[string]Handler{},
		allowlist: allowlist,
		logger:    logger,
	}
}

// Register adds h. Tools outside the allowlist are skipped; a duplicate name
// is an error.
func (r *Registry) Register(h Handler) error {
	name := h.Spec().Name
	if name == "" {
		return clierr.New(clierr.CodeInternal, "tool name is required")
	}
	if err := policy.CheckToolAllowed(r.allowlist, name); err != nil {
		r.logger.Debug("tool not enabled", zap.String("tool", name))
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[name]; exists {
		return clierr.New(clierr.CodeInternal, fmt.Sprintf("tool %s already registered", name))
	}
	r.handlers[name] = h
	r.order = append(r.order, name)
	return nil
}

// Specs lists declarations in registration order.
func (r *Registry) Specs() []model.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.handlers[name].Spec())
	}
	return out
}

// Dispatch runs inv. Failures are reported in the result content for the
// model to read; Dispatch itself never fails.
func (r *Registry) Dispatch(ctx context.Context, inv model.ToolInvocation) model.ToolResult {
	r.mu.RLock()
	h, ok := r.handlers[inv.Name]
	r.mu.RUnlock()

	result := model.ToolResult{CallID: inv.ID, Name: inv.Name}
	if !ok {
		r.logger.Warn("tool not found", zap.String("tool", inv.Name))
		result.Content = fmt.Sprintf("function not found: %s", inv.Name)
		return result
	}
	args := inv.Arguments
	if args == nil {
		args = map[string]any{}
	}
	if err := h.Validate(args); err != nil {
		r.logger.Warn("tool arguments rejected", zap.String("tool", inv.Name), zap.Error(err))
		result.Content = err.Error()
		return result
	}

	out, err := h.Execute(ctx, args)
	if err != nil {
		r.logger.Warn("tool failed", zap.String("tool", inv.Name), zap.Error(err))
		result.Content = failureContent(inv.Name, err)
		return result
	}
	out.CallID = inv.ID
	out.Name = inv.Name
	return out
}

func failureContent(tool string, err error) string {
	if clierr.Is(err, clierr.CodeNotFound) {
		return fmt.Sprintf("no data available: %v", err)
	}
	return fmt.Sprintf("%s failed: %v", tool, err)
}
