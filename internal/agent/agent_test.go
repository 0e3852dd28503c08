package agent

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ggonzalez94/solchat/internal/conversation"
	clierr "github.com/ggonzalez94/solchat/internal/errors"
	"github.com/ggonzalez94/solchat/internal/model"
	"github.com/ggonzalez94/solchat/internal/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type step struct {
	completion model.Completion
	err        error
}

// scriptedModel replays completions and records the turns it was shown.
type scriptedModel struct {
	steps []step
	seen  [][]model.Turn
}

func (s *scriptedModel) Complete(_ context.Context, turns []model.Turn, _ []model.ToolSpec) (model.Completion, error) {
	s.seen = append(s.seen, append([]model.Turn(nil), turns...))
	if len(s.steps) == 0 {
		return model.Completion{}, clierr.New(clierr.CodeInternal, "script exhausted")
	}
	next := s.steps[0]
	s.steps = s.steps[1:]
	return next.completion, next.err
}

func call(name string, args map[string]any) step {
	return step{completion: model.Completion{Invocation: &model.ToolInvocation{Name: name, Arguments: args}}}
}

func final(text string) step {
	return step{completion: model.Completion{Text: text}}
}

func newAgent(t *testing.T, m ModelClient, maxRounds int) (*Agent, conversation.Store) {
	t.Helper()
	reg := tools.NewRegistry(nil, nil)
	require.NoError(t, reg.Register(tools.OffTopic{}))
	store := conversation.NewMemory()
	return New(Config{MaxRounds: maxRounds, Timeout: 5 * time.Second}, m, reg, store, nil), store
}

func TestExchangeTwoToolRoundsThenAnswer(t *testing.T) {
	m := &scriptedModel{steps: []step{call("off_topic", nil), call("off_topic", map[string]any{}), final("Please ask about trading.")}}
	a, store := newAgent(t, m, 8)

	got, err := a.Exchange(context.Background(), "u1", "what's the weather?")
	require.NoError(t, err)
	assert.Equal(t, "Please ask about trading.", got)

	turns, err := store.Read(context.Background(), "u1")
	require.NoError(t, err)
	roles := make([]model.Role, 0, len(turns))
	for _, turn := range turns {
		roles = append(roles, turn.Role)
	}
	assert.Equal(t, []model.Role{
		model.RoleUser,
		model.RoleToolCall, model.RoleToolResult,
		model.RoleToolCall, model.RoleToolResult,
		model.RoleModel,
	}, roles)
	for i := 1; i <= 3; i += 2 {
		assert.Equal(t, turns[i].Call.Name, turns[i+1].Result.Name)
	}
	assert.Equal(t, "Please ask about trading.", turns[5].Text)

	// Each model call saw every turn persisted before it.
	require.Len(t, m.seen, 3)
	assert.Len(t, m.seen[0], 1)
	assert.Len(t, m.seen[1], 3)
	assert.Len(t, m.seen[2], 5)
}

func TestExchangeUnknownToolIsReportedToModel(t *testing.T) {
	m := &scriptedModel{steps: []step{call("get_weather", nil), final("I can't check weather.")}}
	a, store := newAgent(t, m, 8)

	_, err := a.Exchange(context.Background(), "u1", "weather?")
	require.NoError(t, err)
	turns, _ := store.Read(context.Background(), "u1")
	require.Len(t, turns, 4)
	assert.Contains(t, turns[2].Result.Content, "get_weather")
}

func TestExchangeStopsAtMaxRounds(t *testing.T) {
	steps := make([]step, 0, 10)
	for i := 0; i < 10; i++ {
		steps = append(steps, call("off_topic", nil))
	}
	m := &scriptedModel{steps: steps}
	a, store := newAgent(t, m, 2)

	_, err := a.Exchange(context.Background(), "u1", "loop")
	assert.True(t, clierr.Is(err, clierr.CodeMaxRounds))
	turns, _ := store.Read(context.Background(), "u1")
	assert.Len(t, turns, 5, "user turn plus two executed rounds")
	assert.Len(t, m.seen, 3)
}

func TestExchangeFailureKeepsAppendedTurns(t *testing.T) {
	m := &scriptedModel{steps: []step{call("off_topic", nil), {err: clierr.New(clierr.CodeProtocol, "gemini candidate has no parts")}}}
	a, store := newAgent(t, m, 8)

	_, err := a.Exchange(context.Background(), "u1", "hello")
	assert.True(t, clierr.Is(err, clierr.CodeProtocol))
	turns, _ := store.Read(context.Background(), "u1")
	assert.Len(t, turns, 3)
}

func TestExchangePersistsPlaceholderOnce(t *testing.T) {
	m := &scriptedModel{steps: []step{
		call("off_topic", nil),
		{completion: model.Completion{Text: "answer", Prompted: true}},
	}}
	a, store := newAgent(t, m, 8)

	_, err := a.Exchange(context.Background(), "u1", "hello")
	require.NoError(t, err)
	turns, _ := store.Read(context.Background(), "u1")
	require.Len(t, turns, 5)
	assert.True(t, turns[3].IsPlaceholder())
	assert.Equal(t, model.RoleModel, turns[4].Role)
}

func TestExchangeRejectsEmptyMessage(t *testing.T) {
	a, _ := newAgent(t, &scriptedModel{}, 8)
	_, err := a.Exchange(context.Background(), "u1", "  ")
	assert.True(t, clierr.Is(err, clierr.CodeUsage))
}

func TestExchangeCancelled(t *testing.T) {
	a, _ := newAgent(t, &scriptedModel{steps: []step{{err: context.Canceled}}}, 8)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.Exchange(ctx, "u1", "hello")
	assert.True(t, clierr.Is(err, clierr.CodeCancelled))
}

// slowTools answers only after the exchange deadline has passed.
type slowTools struct{}

func (slowTools) Specs() []model.ToolSpec { return nil }

func (slowTools) Dispatch(ctx context.Context, inv model.ToolInvocation) model.ToolResult {
	<-ctx.Done()
	return model.ToolResult{Name: inv.Name, Content: "error: " + ctx.Err().Error()}
}

func TestExchangeTimeoutKeepsToolCallPaired(t *testing.T) {
	dir := t.TempDir()
	store, err := conversation.OpenSQLite(filepath.Join(dir, "conversations.db"), filepath.Join(dir, "conversations.lock"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	m := &scriptedModel{steps: []step{call("get_user_trades", map[string]any{"wallet_address": "w1"}), final("unused")}}
	a := New(Config{MaxRounds: 8, Timeout: 100 * time.Millisecond}, m, slowTools{}, store, nil)

	_, err = a.Exchange(context.Background(), "u1", "what did I trade?")
	assert.True(t, clierr.Is(err, clierr.CodeCancelled))

	turns, err := store.Read(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, turns, 3)
	assert.Equal(t, model.RoleUser, turns[0].Role)
	assert.Equal(t, model.RoleToolCall, turns[1].Role)
	assert.Equal(t, model.RoleToolResult, turns[2].Role)
	assert.Equal(t, "get_user_trades", turns[2].Result.Name)
	assert.Len(t, m.seen, 1, "no model call after the deadline")
}
