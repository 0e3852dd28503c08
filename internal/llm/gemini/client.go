package gemini

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
	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel   = "gemini-1.5-pro"
)

var harmCategories = []string{
	"HARM_CATEGORY_DANGEROUS_CONTENT",
	"HARM_CATEGORY_HARASSMENT",
	"HARM_CATEGORY_HATE_SPEECH",
	"HARM_CATEGORY_SEXUALLY_EXPLICIT",
}

type Config struct {
	BaseURL           string
	Model             string
	APIKey            string
	SystemInstruction string
	Temperature       float64
	TopK              int
	TopP              float64
	MaxOutputTokens   int
	// MaxAttempts bounds the requests of one Complete call, whatever mix of
	// transport failures, retryable statuses and empty answers caused them.
	MaxAttempts int
	Backoff     httpx.Backoff
	Timeout     time.Duration
}

type Client struct {
	cfg    Config
	http   *httpx.Client
	logger *zap.Logger
}

func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
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
	hc := httpx.New(cfg.Timeout, 0, httpx.WithLogger(logger))
	return &Client{cfg: cfg, http: hc, logger: logger}
}

func (c *Client) Name() string { return "gemini" }

// Complete sends the conversation and returns the first candidate's answer.
// An answer without candidates is re-asked, adding the placeholder user turn
// when a tool result is awaiting its answer.
func (c *Client) Complete(ctx context.Context, turns []model.Turn, specs []model.ToolSpec) (model.Completion, error) {
	if c.cfg.APIKey == "" {
		return model.Completion{}, clierr.New(clierr.CodeAuth, "gemini api key is required (SOLCHAT_MODEL_API_KEY)")
	}
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

		resp, err := c.generate(ctx, working, specs)
		if err != nil {
			if !retryable(err) {
				return model.Completion{}, err
			}
			lastErr = err
			continue
		}
		completion, err := parseResponse(resp)
		if err == nil {
			completion.Prompted = prompted
			return completion, nil
		}
		if !isNoCandidates(err) {
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

// retryable accepts transport failures and statuses a re-issue may fix.
func retryable(err error) bool {
	if status, ok := httpx.StatusOf(err); ok {
		return llm.RetryableStatus(status)
	}
	return clierr.Is(err, clierr.CodeTransport)
}

func (c *Client) generate(ctx context.Context, turns []model.Turn, specs []model.ToolSpec) (generateResponse, error) {
	body, err := json.Marshal(c.buildRequest(turns, specs))
	if err != nil {
		return generateResponse{}, clierr.Wrap(clierr.CodeInternal, "encode gemini request", err)
	}
	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.cfg.BaseURL, c.cfg.Model)
	var resp generateResponse
	_, err = httpx.DoBodyJSON(ctx, c.http, http.MethodPost, endpoint, body, map[string]string{
		"x-goog-api-key": c.cfg.APIKey,
	}, &resp)
	if err != nil {
		return generateResponse{}, err
	}
	return resp, nil
}

func (c *Client) buildRequest(turns []model.Turn, specs []model.ToolSpec) generateRequest {
	req := generateRequest{
		Contents:       encodeTurns(turns),
		SafetySettings: make([]safetySetting, 0, len(harmCategories)),
		GenerationConfig: generationConfig{
			Temperature:     c.cfg.Temperature,
			TopK:            c.cfg.TopK,
			TopP:            c.cfg.TopP,
			MaxOutputTokens: c.cfg.MaxOutputTokens,
			StopSequences:   []string{},
		},
	}
	if c.cfg.SystemInstruction != "" {
		req.SystemInstruction = &content{Role: "system", Parts: []part{{Text: c.cfg.SystemInstruction}}}
	}
	for _, category := range harmCategories {
		req.SafetySettings = append(req.SafetySettings, safetySetting{Category: category, Threshold: "BLOCK_ONLY_HIGH"})
	}
	if len(specs) > 0 {
		decls := make([]functionDeclaration, 0, len(specs))
		for _, s := range specs {
			decls = append(decls, encodeSpec(s))
		}
		req.Tools = []toolGroup{{FunctionDeclarations: decls}}
	}
	return req
}

func encodeSpec(s model.ToolSpec) functionDeclaration {
	decl := functionDeclaration{Name: s.Name, Description: s.Description}
	if len(s.Parameters.Properties) == 0 {
		return decl
	}
	params := &parameters{Type: s.Parameters.Type, Required: s.Parameters.Required, Properties: map[string]property{}}
	for name, p := range s.Parameters.Properties {
		params.Properties[name] = property{Type: p.Type, Description: p.Description}
	}
	decl.Parameters = params
	return decl
}

func encodeTurns(turns []model.Turn) []content {
	out := make([]content, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case model.RoleUser:
			out = append(out, content{Role: "user", Parts: []part{{Text: t.Text}}})
		case model.RoleModel:
			out = append(out, content{Role: "model", Parts: []part{{Text: t.Text}}})
		case model.RoleToolCall:
			if t.Call == nil {
				continue
			}
			args := t.Call.Arguments
			if args == nil {
				args = map[string]any{}
			}
			out = append(out, content{Role: "model", Parts: []part{{FunctionCall: &functionCall{Name: t.Call.Name, Args: args}}}})
		case model.RoleToolResult:
			if t.Result == nil {
				continue
			}
			out = append(out, content{Role: "function", Parts: []part{{FunctionResponse: &functionResponse{
				Name:     t.Result.Name,
				Response: responseEnvelope{Name: t.Result.Name, Content: t.Result.Content},
			}}}})
		}
	}
	return out
}

func parseResponse(resp generateResponse) (model.Completion, error) {
	if len(resp.Candidates) == 0 {
		return model.Completion{}, llm.Protocol(llm.ErrNoCandidates, "gemini returned no candidates")
	}
	first := resp.Candidates[0]
	if first.Content == nil || len(first.Content.Parts) == 0 {
		return model.Completion{}, llm.Protocol(llm.ErrNoParts, "gemini candidate has no parts")
	}
	p := first.Content.Parts[0]
	if p.FunctionCall != nil {
		if strings.TrimSpace(p.FunctionCall.Name) == "" {
			return model.Completion{}, llm.Protocol(llm.ErrMalformedCall, "gemini function call has no name")
		}
		args := p.FunctionCall.Args
		if args == nil {
			args = map[string]any{}
		}
		return model.Completion{Invocation: &model.ToolInvocation{Name: p.FunctionCall.Name, Arguments: args}}, nil
	}
	if p.Text == "" {
		return model.Completion{}, llm.Protocol(llm.ErrNoParts, "gemini part carries neither text nor function call")
	}
	return model.Completion{Text: p.Text}, nil
}

func isNoCandidates(err error) bool {
	return errors.Is(err, llm.ErrNoCandidates)
}
