package model

import (
	"fmt"
	"strings"
	"time"
)

const EnvelopeVersion = "v1"

type Envelope struct {
	Version  string       `json:"version"`
	Success  bool         `json:"success"`
	Data     any          `json:"data,omitempty"`
	Error    *ErrorBody   `json:"error"`
	Warnings []string     `json:"warnings,omitempty"`
	Meta     EnvelopeMeta `json:"meta"`
}

type ErrorBody struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

type EnvelopeMeta struct {
	RequestID string           `json:"request_id"`
	Timestamp time.Time        `json:"timestamp"`
	Command   string           `json:"command"`
	Providers []ProviderStatus `json:"providers,omitempty"`
}

type ProviderStatus struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
}

type ProviderInfo struct {
	Name          string   `json:"name"`
	Type          string   `json:"type"`
	RequiresKey   bool     `json:"requires_key"`
	Capabilities  []string `json:"capabilities"`
	KeyEnvVarName string   `json:"key_env_var,omitempty"`
}

// TokenFlow is one token or native-currency movement attributed to a wallet.
type TokenFlow struct {
	Symbol       string   `json:"symbol"`
	Address      string   `json:"address"`
	Amount       float64  `json:"amount"`
	Name         string   `json:"name,omitempty"`
	CurrentPrice *float64 `json:"current_price,omitempty"`
}

// PriceRatio is the execution price of a one-in, one-out swap, in sold units per bought unit.
type PriceRatio struct {
	InputSymbol  string  `json:"input_symbol"`
	OutputSymbol string  `json:"output_symbol"`
	Ratio        float64 `json:"price_value"`
	Display      string  `json:"ratio"`
}

type SwapTransaction struct {
	OccurredAt  time.Time   `json:"occurred_at"`
	RelativeAge string      `json:"time_ago"`
	Source      string      `json:"source"`
	Description string      `json:"description"`
	Sold        []TokenFlow `json:"sold_tokens"`
	Bought      []TokenFlow `json:"bought_tokens"`
	Price       *PriceRatio `json:"price,omitempty"`
}

// PlainLine renders s as one line: age, source, flows and price.
func (s SwapTransaction) PlainLine() string {
	parts := []string{s.RelativeAge, s.Source, "sold " + flowList(s.Sold), "bought " + flowList(s.Bought)}
	if s.Price != nil {
		parts = append(parts, s.Price.Display)
	}
	return strings.Join(parts, "  ")
}

func flowList(flows []TokenFlow) string {
	if len(flows) == 0 {
		return "-"
	}
	items := make([]string, 0, len(flows))
	for _, f := range flows {
		items = append(items, fmt.Sprintf("%g %s", f.Amount, f.Symbol))
	}
	return strings.Join(items, ", ")
}

type PricePoint struct {
	Time      string  `json:"time"`
	Timestamp int64   `json:"timestamp"`
	Value     float64 `json:"value"`
	Price     string  `json:"price"`
}

type PriceHistory struct {
	Token     string       `json:"token"`
	FetchTime string       `json:"fetch_time"`
	History   []PricePoint `json:"history"`
}

type PriceHistoryRequest struct {
	Address     string
	AddressType string
	Interval    string
	From        int64
	To          int64
	Chain       string
	Currency    string
}

var intervalSteps = map[string]time.Duration{
	"1m": time.Minute, "3m": 3 * time.Minute, "5m": 5 * time.Minute,
	"15m": 15 * time.Minute, "30m": 30 * time.Minute,
}

// WindowEnd is the default end of a price window: now truncated to the
// candle interval, and to the hour for hourly or longer candles. Queries
// that omit an end therefore share one cache key per step.
func WindowEnd(now time.Time, interval string) int64 {
	step, ok := intervalSteps[strings.TrimSpace(interval)]
	if !ok {
		step = time.Hour
	}
	return now.UTC().Truncate(step).Unix()
}

type TokenMetadata struct {
	Address  string   `json:"address"`
	Symbol   string   `json:"symbol"`
	Name     string   `json:"name,omitempty"`
	Decimals int      `json:"decimals,omitempty"`
	PriceUSD *float64 `json:"price_usd,omitempty"`
}
