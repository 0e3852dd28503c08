package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	clierr "github.com/ggonzalez94/solchat/internal/errors"
	"github.com/ggonzalez94/solchat/internal/httpx"
	"github.com/ggonzalez94/solchat/internal/llm"
	"github.com/ggonzalez94/solchat/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(url string, attempts int) *Client {
	return New(Config{
		BaseURL:           url,
		Model:             "test-model",
		APIKey:            "ok",
		SystemInstruction: "you are helpful solana trading assistant",
		Temperature:       0.1,
		TopP:              1,
		MaxOutputTokens:   2048,
		MaxAttempts:       attempts,
		Backoff:           httpx.Backoff{Base: time.Millisecond, Max: 2 * time.Millisecond},
		Timeout:           2 * time.Second,
	}, nil)
}

func chatResponse(message string) string {
	return `{"id":"x","object":"chat.completion","created":1,"model":"test-model","choices":[{"index":0,"message":` + message + `,"finish_reason":"stop"}]}`
}

func TestCompleteEncodesToolTurns(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &captured)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(chatResponse(`{"role":"assistant","content":"done"}`)))
	}))
	defer srv.Close()

	now := time.Now()
	turns := []model.Turn{
		model.UserTurn("trades", now),
		model.ToolCallTurn(model.ToolInvocation{Name: "get_user_trades", Arguments: map[string]any{"wallet_address": "w"}}, now),
		model.ToolResultTurn(model.ToolResult{Name: "get_user_trades", Content: "[]"}, now),
	}
	got, err := testClient(srv.URL, 1).Complete(context.Background(), turns, []model.ToolSpec{{Name: "get_user_trades", Parameters: model.ToolSchema{Type: "object"}}})
	require.NoError(t, err)
	assert.Equal(t, "done", got.Text)

	msgs := captured["messages"].([]any)
	require.Len(t, msgs, 4)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	call := msgs[2].(map[string]any)
	tc := call["tool_calls"].([]any)[0].(map[string]any)
	assert.Equal(t, "call_1", tc["id"])
	result := msgs[3].(map[string]any)
	assert.Equal(t, "tool", result["role"])
	assert.Equal(t, "call_1", result["tool_call_id"])
	assert.Len(t, captured["tools"], 1)
}

func TestCompleteParsesToolCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(chatResponse(`{"role":"assistant","tool_calls":[{"id":"c9","type":"function","function":{"name":"get_user_trades","arguments":"{\"wallet_address\":\"w1\"}"}}]}`)))
	}))
	defer srv.Close()

	got, err := testClient(srv.URL, 1).Complete(context.Background(), []model.Turn{model.UserTurn("hi", time.Now())}, nil)
	require.NoError(t, err)
	require.NotNil(t, got.Invocation)
	assert.Equal(t, "c9", got.Invocation.ID)
	assert.Equal(t, "w1", got.Invocation.Arguments["wallet_address"])
}

func TestCompleteMalformedArgumentsFailFast(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(chatResponse(`{"role":"assistant","tool_calls":[{"id":"c1","type":"function","function":{"name":"get_user_trades","arguments":"not json"}}]}`)))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL, 4).Complete(context.Background(), []model.Turn{model.UserTurn("hi", time.Now())}, nil)
	assert.True(t, errors.Is(err, llm.ErrMalformedCall))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCompleteRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`{"error":{"message":"bad gateway","type":"server_error"}}`))
			return
		}
		_, _ = w.Write([]byte(chatResponse(`{"role":"assistant","content":"ok"}`)))
	}))
	defer srv.Close()

	got, err := testClient(srv.URL, 3).Complete(context.Background(), []model.Turn{model.UserTurn("hi", time.Now())}, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", got.Text)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestCompleteAuthFailsFast(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL, 5).Complete(context.Background(), []model.Turn{model.UserTurn("hi", time.Now())}, nil)
	assert.True(t, clierr.Is(err, clierr.CodeAuth))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
