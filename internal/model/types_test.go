package model

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"
)

func TestSwapTransactionJSONRoundTrip(t *testing.T) {
	price := 142.5
	in := SwapTransaction{
		OccurredAt:  time.Unix(1737772532, 0).UTC(),
		RelativeAge: "2 days ago",
		Source:      "JUPITER",
		Description: "wallet swapped 2 SOL for 285 USDC",
		Sold:        []TokenFlow{{Symbol: "SOL", Address: "So11111111111111111111111111111111111111112", Amount: 2, Name: "Wrapped SOL", CurrentPrice: &price}},
		Bought:      []TokenFlow{{Symbol: "USDC", Address: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", Amount: 285}},
		Price:       &PriceRatio{InputSymbol: "SOL", OutputSymbol: "USDC", Ratio: 2.0 / 285.0, Display: "1 USDC = 0.007018 SOL"},
	}
	buf, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(buf, &raw); err != nil {
		t.Fatalf("unmarshal raw: %v", err)
	}
	for _, key := range []string{"time_ago", "source", "description", "sold_tokens", "bought_tokens", "price"} {
		if _, ok := raw[key]; !ok {
			t.Fatalf("missing key %q in %s", key, buf)
		}
	}

	var out SwapTransaction
	if err := json.Unmarshal(buf, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(in.Sold, out.Sold) || !reflect.DeepEqual(in.Bought, out.Bought) {
		t.Fatalf("flows changed across round trip: %+v", out)
	}
	if !reflect.DeepEqual(in.Price, out.Price) {
		t.Fatalf("price changed across round trip: %+v vs %+v", in.Price, out.Price)
	}
}

func TestAwaitingToolAnswer(t *testing.T) {
	now := time.Now()
	if AwaitingToolAnswer(nil) {
		t.Fatal("empty conversation is not awaiting a tool answer")
	}
	turns := []Turn{UserTurn("hi", now), ToolCallTurn(ToolInvocation{Name: "off_topic"}, now)}
	if AwaitingToolAnswer(turns) {
		t.Fatal("a pending tool call is not yet awaiting an answer")
	}
	turns = append(turns, ToolResultTurn(ToolResult{Name: "off_topic", Content: "x"}, now))
	if !AwaitingToolAnswer(turns) {
		t.Fatal("expected tool result to await an answer")
	}
	turns = append(turns, UserTurn(PromptPlaceholder, now))
	if !AwaitingToolAnswer(turns) {
		t.Fatal("expected placeholder to keep awaiting an answer")
	}
}

func TestWindowEnd(t *testing.T) {
	now := time.Date(2025, 2, 4, 5, 37, 42, 0, time.UTC)
	cases := map[string]time.Time{
		"12H": time.Date(2025, 2, 4, 5, 0, 0, 0, time.UTC),
		"1D":  time.Date(2025, 2, 4, 5, 0, 0, 0, time.UTC),
		"15m": time.Date(2025, 2, 4, 5, 30, 0, 0, time.UTC),
		"1m":  time.Date(2025, 2, 4, 5, 37, 0, 0, time.UTC),
		"":    time.Date(2025, 2, 4, 5, 0, 0, 0, time.UTC),
	}
	for interval, want := range cases {
		if got := WindowEnd(now, interval); got != want.Unix() {
			t.Fatalf("interval %q: got %d want %d", interval, got, want.Unix())
		}
	}
}
