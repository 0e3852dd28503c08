package conversation

import (
	"context"
	"strings"
	"sync"

	clierr "github.com/ggonzalez94/solchat/internal/errors"
	"github.com/ggonzalez94/solchat/internal/model"
)

// Store persists one ordered turn history per user. Implementations must be
// safe for concurrent use by independent conversation workers.
type Store interface {
	// Register creates an empty conversation if none exists.
	Register(ctx context.Context, userID string) error
	// Append adds turns in order and returns the full conversation.
	Append(ctx context.Context, userID string, turns ...model.Turn) ([]model.Turn, error)
	Reset(ctx context.Context, userID string) error
	// Read returns the conversation, empty when the user is unknown.
	Read(ctx context.Context, userID string) ([]model.Turn, error)
	Close() error
}

func validateUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return clierr.New(clierr.CodeUsage, "user id is required")
	}
	return nil
}

type Memory struct {
	mu    sync.Mutex
	convs map[string][]model.Turn
}

func NewMemory() *Memory {
	return &Memory{convs: map[string][]model.Turn{}}
}

func (m *Memory) Register(_ context.Context, userID string) error {
	if err := validateUser(userID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.convs[userID]; !ok {
		m.convs[userID] = []model.Turn{}
	}
	return nil
}

func (m *Memory) Append(_ context.Context, userID string, turns ...model.Turn) ([]model.Turn, error) {
	if err := validateUser(userID); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.convs[userID] = append(m.convs[userID], turns...)
	return cloneTurns(m.convs[userID]), nil
}

func (m *Memory) Reset(_ context.Context, userID string) error {
	if err := validateUser(userID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.convs[userID] = []model.Turn{}
	return nil
}

func (m *Memory) Read(_ context.Context, userID string) ([]model.Turn, error) {
	if err := validateUser(userID); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneTurns(m.convs[userID]), nil
}

func (m *Memory) Close() error { return nil }

func cloneTurns(in []model.Turn) []model.Turn {
	out := make([]model.Turn, len(in))
	copy(out, in)
	return out
}
