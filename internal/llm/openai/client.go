package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	clierr "github.com/ggonzalez94/solchat/internal/errors"
	"github.com/ggonzalez94/solchat/internal/httpx"
	"github.com/ggonzalez94/solchat/internal/llm"
	"github.com/ggonzalez94/solchat/internal/model"
	goopenai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const DefaultModel = "gpt-4o-mini"

type Config struct {
	BaseURL           string
	Model             string
	APIKey            string
	SystemInstruction string
	Temperature       float64
	TopP              float64
	MaxOutputTokens   int
	MaxAttempts       int
	Backoff           httpx.Backoff
	Timeout           time.Duration
}

// Client adapts OpenAI-compatible chat completion endpoints to the model
// contract used by the agent.
type Client struct {
	cfg    Config
	client *goopenai.Client
	logger *zap.Logger
}

func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Backoff.Base <= 0 {
		cfg.Backoff = httpx.Backoff{Base: time.Second, Max: 8 * time.Second, Jitter: 250 * time.Millisecond}
	}
	oc := goopenai.DefaultConfig(cfg.APIKey)
	if strings.TrimSpace(cfg.BaseURL) != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	return &Client{cfg: cfg, client: goopenai.NewClientWithConfig(oc), logger: logger}
}

func (c *Client) Name() string { return "openai" }

func (c *Client) Complete(ctx context.Context, turns []model.Turn, specs []model.ToolSpec) (model.Completion, error) {
	working := append([]model.Turn(nil), turns...)
	prompted := false

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := c.cfg.Backoff.Delay(attempt - 1)
			c.logger.Warn("retrying model request",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", delay),
				zap.Error(lastErr),
			)
			if err := httpx.Sleep(ctx, delay); err != nil {
				return model.Completion{}, err
			}
		}

		resp, err := c.client.CreateChatCompletion(ctx, c.buildRequest(working, specs))
		if err != nil {
			mapped, retry := mapError(ctx, err)
			if !retry {
				return model.Completion{}, mapped
			}
			lastErr = mapped
			continue
		}
		completion, err := parseResponse(resp)
		if err == nil {
			completion.Prompted = prompted
			return completion, nil
		}
		if !errors.Is(err, llm.ErrNoCandidates) {
			return model.Completion{}, err
		}
		lastErr = err
		if model.AwaitingToolAnswer(working) && !working[len(working)-1].IsPlaceholder() {
			working = append(working, model.UserTurn(model.PromptPlaceholder, time.Now().UTC()))
			prompted = true
		}
	}
	return model.Completion{}, lastErr
}

func (c *Client) buildRequest(turns []model.Turn, specs []model.ToolSpec) goopenai.ChatCompletionRequest {
	req := goopenai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    encodeTurns(c.cfg.SystemInstruction, turns),
		Temperature: float32(c.cfg.Temperature),
		TopP:        float32(c.cfg.TopP),
		MaxTokens:   c.cfg.MaxOutputTokens,
	}
	for _, s := range specs {
		req.Tools = append(req.Tools, goopenai.Tool{
			Type: goopenai.ToolTypeFunction,
			Function: &goopenai.FunctionDefinition{
				Name:        s.Name,
				Description: s.Description,
				Parameters:  s.Parameters,
			},
		})
	}
	return req
}

// encodeTurns maps turns to chat messages. Calls without an id get a
// positional one so the following result can reference it.
func encodeTurns(system string, turns []model.Turn) []goopenai.ChatCompletionMessage {
	out := make([]goopenai.ChatCompletionMessage, 0, len(turns)+1)
	if system != "" {
		out = append(out, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleSystem, Content: system})
	}
	lastCallID := ""
	for i, t := range turns {
		switch t.Role {
		case model.RoleUser:
			out = append(out, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleUser, Content: t.Text})
		case model.RoleModel:
			out = append(out, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleAssistant, Content: t.Text})
		case model.RoleToolCall:
			if t.Call == nil {
				continue
			}
			callID := t.Call.ID
			if callID == "" {
				callID = fmt.Sprintf("call_%d", i)
			}
			lastCallID = callID
			args, err := json.Marshal(t.Call.Arguments)
			if err != nil || t.Call.Arguments == nil {
				args = []byte("{}")
			}
			out = append(out, goopenai.ChatCompletionMessage{
				Role: goopenai.ChatMessageRoleAssistant,
				ToolCalls: []goopenai.ToolCall{{
					ID:   callID,
					Type: goopenai.ToolTypeFunction,
					Function: goopenai.FunctionCall{
						Name:      t.Call.Name,
						Arguments: string(args),
					},
				}},
			})
		case model.RoleToolResult:
			if t.Result == nil {
				continue
			}
			callID := t.Result.CallID
			if callID == "" {
				callID = lastCallID
			}
			out = append(out, goopenai.ChatCompletionMessage{
				Role:       goopenai.ChatMessageRoleTool,
				Content:    t.Result.Content,
				Name:       t.Result.Name,
				ToolCallID: callID,
			})
		}
	}
	return out
}

func parseResponse(resp goopenai.ChatCompletionResponse) (model.Completion, error) {
	if len(resp.Choices) == 0 {
		return model.Completion{}, llm.Protocol(llm.ErrNoCandidates, "model returned no choices")
	}
	msg := resp.Choices[0].Message
	if len(msg.ToolCalls) > 0 {
		tc := msg.ToolCalls[0]
		if strings.TrimSpace(tc.Function.Name) == "" {
			return model.Completion{}, llm.Protocol(llm.ErrMalformedCall, "tool call has no function name")
		}
		args := map[string]any{}
		if strings.TrimSpace(tc.Function.Arguments) != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return model.Completion{}, llm.Protocol(llm.ErrMalformedCall, fmt.Sprintf("tool call arguments are not a JSON object: %v", err))
			}
		}
		return model.Completion{Invocation: &model.ToolInvocation{ID: tc.ID, Name: tc.Function.Name, Arguments: args}}, nil
	}
	if msg.Content == "" {
		return model.Completion{}, llm.Protocol(llm.ErrNoParts, "choice carries neither content nor tool call")
	}
	return model.Completion{Text: msg.Content}, nil
}

// mapError converts client errors to coded errors and reports whether a
// re-issue may help.
func mapError(ctx context.Context, err error) (error, bool) {
	if ctx.Err() != nil {
		return clierr.Wrap(clierr.CodeCancelled, "request cancelled", ctx.Err()), false
	}
	status := 0
	var apiErr *goopenai.APIError
	var reqErr *goopenai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	switch {
	case status == 0:
		return clierr.Wrap(clierr.CodeTransport, "model request failed", err), true
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return clierr.Wrap(clierr.CodeAuth, fmt.Sprintf("authentication failed (status %d)", status), err), false
	case status == http.StatusTooManyRequests:
		return clierr.Wrap(clierr.CodeRateLimited, "rate limited (status 429)", err), true
	default:
		return clierr.Wrap(clierr.CodeUpstream, fmt.Sprintf("unexpected status %d", status), err), llm.RetryableStatus(status)
	}
}
