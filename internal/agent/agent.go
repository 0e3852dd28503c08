package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ggonzalez94/solchat/internal/conversation"
	clierr "github.com/ggonzalez94/solchat/internal/errors"
	"github.com/ggonzalez94/solchat/internal/model"
	"go.uber.org/zap"
)

// FailureMessage is what end users see when an exchange cannot finish.
const FailureMessage = "Sorry, something went wrong. Please try again."

const DefaultMaxRounds = 8

type ModelClient interface {
	Complete(ctx context.Context, turns []model.Turn, specs []model.ToolSpec) (model.Completion, error)
}

type ToolDispatcher interface {
	Specs() []model.ToolSpec
	Dispatch(ctx context.Context, inv model.ToolInvocation) model.ToolResult
}

type Config struct {
	// MaxRounds caps tool executions per exchange.
	MaxRounds int
	// Timeout bounds a whole exchange, including every retry.
	Timeout time.Duration
}

// Agent drives one exchange at a time per user: it alternates model calls
// and tool dispatch until the model answers with text.
type Agent struct {
	model  ModelClient
	tools  ToolDispatcher
	store  conversation.Store
	cfg    Config
	now    func() time.Time
	logger *zap.Logger
}

func New(cfg Config, client ModelClient, tools ToolDispatcher, store conversation.Store, logger *zap.Logger) *Agent {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = DefaultMaxRounds
	}
	return &Agent{
		model:  client,
		tools:  tools,
		store:  store,
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

// Exchange appends text as a user turn and returns the model's final answer.
// Every turn is persisted before the next network call, so a failed exchange
// keeps all turns appended up to the failure.
func (a *Agent) Exchange(ctx context.Context, userID, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", clierr.New(clierr.CodeUsage, "message is required")
	}
	if a.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()
	}
	log := a.logger.With(zap.String("user_id", userID))

	answer, err := a.exchange(ctx, log, userID, text)
	if err != nil {
		if ctx.Err() != nil && !clierr.Is(err, clierr.CodeCancelled) {
			err = clierr.Wrap(clierr.CodeCancelled, "exchange cancelled", err)
		}
		log.Error("exchange failed", zap.Error(err))
		return "", err
	}
	return answer, nil
}

func (a *Agent) exchange(ctx context.Context, log *zap.Logger, userID, text string) (string, error) {
	if err := a.store.Register(ctx, userID); err != nil {
		return "", err
	}
	turns, err := a.store.Append(ctx, userID, model.UserTurn(text, a.now()))
	if err != nil {
		return "", err
	}
	specs := a.tools.Specs()

	for round := 0; ; round++ {
		completion, err := a.model.Complete(ctx, turns, specs)
		if err != nil {
			return "", err
		}
		if completion.Prompted && !turns[len(turns)-1].IsPlaceholder() {
			if turns, err = a.store.Append(ctx, userID, model.UserTurn(model.PromptPlaceholder, a.now())); err != nil {
				return "", err
			}
		}
		if completion.Invocation == nil {
			if _, err := a.store.Append(ctx, userID, model.ModelTurn(completion.Text, a.now())); err != nil {
				return "", err
			}
			return completion.Text, nil
		}
		if round >= a.cfg.MaxRounds {
			return "", clierr.New(clierr.CodeMaxRounds, fmt.Sprintf("model requested more than %d tool rounds", a.cfg.MaxRounds))
		}

		call := *completion.Invocation
		log.Debug("tool requested", zap.String("tool", call.Name), zap.Int("round", round+1))
		callTurn := model.ToolCallTurn(call, a.now())
		result := a.tools.Dispatch(ctx, call)
		// The call and its result are stored together, even after ctx ends,
		// so the conversation never holds an unanswered tool call.
		if turns, err = a.store.Append(context.WithoutCancel(ctx), userID, callTurn, model.ToolResultTurn(result, a.now())); err != nil {
			return "", err
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
	}
}

func (a *Agent) History(ctx context.Context, userID string) ([]model.Turn, error) {
	return a.store.Read(ctx, userID)
}

func (a *Agent) Reset(ctx context.Context, userID string) error {
	return a.store.Reset(ctx, userID)
}

func (a *Agent) Specs() []model.ToolSpec {
	return a.tools.Specs()
}
