package out

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/ggonzalez94/solchat/internal/config"
	"github.com/ggonzalez94/solchat/internal/model"
)

func TestRenderJSONResultsOnly(t *testing.T) {
	env := model.Envelope{
		Version: model.EnvelopeVersion,
		Success: true,
		Data:    []map[string]any{{"source": "JUPITER", "price": "1 USDC = 0.006667 SOL"}},
		Meta:    model.EnvelopeMeta{Timestamp: time.Now()},
	}
	settings := config.Settings{OutputMode: "json", ResultsOnly: true}
	var buf bytes.Buffer
	if err := Render(&buf, env, settings); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	var out []map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("expected bare data array: %v output=%s", err, buf.String())
	}
	if len(out) != 1 || out[0]["source"] != "JUPITER" {
		t.Fatalf("unexpected output: %s", buf.String())
	}
}

func TestRenderJSONEnvelope(t *testing.T) {
	env := model.Envelope{
		Version: model.EnvelopeVersion,
		Success: false,
		Error:   &model.ErrorBody{Code: 2, Type: "usage", Message: "message is required"},
		Meta:    model.EnvelopeMeta{RequestID: "req-1", Command: "ask", Timestamp: time.Now()},
	}
	var buf bytes.Buffer
	if err := Render(&buf, env, config.Settings{OutputMode: "json"}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	var decoded model.Envelope
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if decoded.Error == nil || decoded.Error.Type != "usage" || decoded.Meta.RequestID != "req-1" {
		t.Fatalf("unexpected envelope: %s", buf.String())
	}
}

func TestRenderPlain(t *testing.T) {
	env := model.Envelope{
		Version: model.EnvelopeVersion,
		Success: true,
		Data:    []map[string]any{{"name": "get_user_trades", "required": 1}},
		Meta:    model.EnvelopeMeta{Timestamp: time.Now()},
	}
	settings := config.Settings{OutputMode: "plain", ResultsOnly: true}
	var buf bytes.Buffer
	if err := Render(&buf, env, settings); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.Contains(buf.String(), "name=get_user_trades") {
		t.Fatalf("unexpected plain output: %s", buf.String())
	}
}

func TestRenderPlainStringIsVerbatim(t *testing.T) {
	env := model.Envelope{Success: true, Data: "You bought 150 USDC."}
	var buf bytes.Buffer
	if err := Render(&buf, env, config.Settings{OutputMode: "plain", ResultsOnly: true}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if buf.String() != "You bought 150 USDC.\n" {
		t.Fatalf("unexpected plain output: %q", buf.String())
	}
}

func TestRenderPlainUsesDomainLines(t *testing.T) {
	at := time.Date(2025, 1, 25, 0, 0, 0, 0, time.UTC)
	turns := []model.Turn{
		model.UserTurn("what did I buy?", at),
		model.ToolCallTurn(model.ToolInvocation{Name: "get_user_trades", Arguments: map[string]any{"wallet_address": "w1"}}, at),
		model.ModelTurn("150 USDC", at),
	}
	var buf bytes.Buffer
	if err := Render(&buf, model.Envelope{Success: true, Data: turns}, config.Settings{OutputMode: "plain", ResultsOnly: true}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	want := "user: what did I buy?\ncall: get_user_trades({\"wallet_address\":\"w1\"})\nmodel: 150 USDC\n"
	if buf.String() != want {
		t.Fatalf("unexpected transcript:\n%s", buf.String())
	}
}

func TestRenderPlainSwapLine(t *testing.T) {
	swap := model.SwapTransaction{
		RelativeAge: "2 hours ago",
		Source:      "JUPITER",
		Sold:        []model.TokenFlow{{Symbol: "SOL", Amount: 1}},
		Bought:      []model.TokenFlow{{Symbol: "USDC", Amount: 150}},
		Price:       &model.PriceRatio{Display: "1 USDC = 0.006667 SOL"},
	}
	var buf bytes.Buffer
	if err := Render(&buf, model.Envelope{Success: true, Data: []model.SwapTransaction{swap}}, config.Settings{OutputMode: "plain", ResultsOnly: true}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	want := "2 hours ago  JUPITER  sold 1 SOL  bought 150 USDC  1 USDC = 0.006667 SOL\n"
	if buf.String() != want {
		t.Fatalf("unexpected swap line: %q", buf.String())
	}
}

func TestRenderPlainStatusLine(t *testing.T) {
	env := model.Envelope{
		Success:  true,
		Data:     map[string]string{"user_id": "u1", "status": "reset"},
		Warnings: []string{"cache disabled"},
		Meta: model.EnvelopeMeta{
			RequestID: "req-1",
			Command:   "reset",
			Providers: []model.ProviderStatus{{Name: "helius", Status: "ok", LatencyMS: 12}},
		},
	}
	var buf bytes.Buffer
	if err := Render(&buf, env, config.Settings{OutputMode: "plain"}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	want := "ok  reset  helius=ok/12ms  request=req-1\nwarning: cache disabled\nstatus=reset user_id=u1\n"
	if buf.String() != want {
		t.Fatalf("unexpected plain output: %q", buf.String())
	}
}

func TestRenderPlainErrorOmitsData(t *testing.T) {
	env := model.Envelope{
		Data:  []any{},
		Error: &model.ErrorBody{Code: 2, Type: "usage_error", Message: "message is required"},
	}
	var buf bytes.Buffer
	if err := Render(&buf, env, config.Settings{OutputMode: "plain"}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if buf.String() != "error usage_error (2): message is required\n" {
		t.Fatalf("unexpected plain output: %q", buf.String())
	}
}
