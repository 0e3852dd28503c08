package tools

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ggonzalez94/solchat/internal/cache"
	"github.com/ggonzalez94/solchat/internal/chaindata"
	clierr "github.com/ggonzalez94/solchat/internal/errors"
	"github.com/ggonzalez94/solchat/internal/model"
	"github.com/ggonzalez94/solchat/internal/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	wallet = "CkBWowCj1SFFVDk8Fkn9b2S3gV8kgBm9MEPG2YQvmhFB"
	token  = "CreiuhfwdWCN5mJbMJtA9bBpYQrQF2tCBuZwSPWfpump"
)

type fakeSource struct {
	trades    []model.SwapTransaction
	tradeErr  error
	calls     int32
	lastPrice model.PriceHistoryRequest
	priceErr  error
}

func (f *fakeSource) WalletTransactions(context.Context, string) ([]model.SwapTransaction, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.trades, f.tradeErr
}

func (f *fakeSource) PriceHistory(_ context.Context, req model.PriceHistoryRequest) (model.PriceHistory, error) {
	f.lastPrice = req
	if f.priceErr != nil {
		return model.PriceHistory{}, f.priceErr
	}
	return model.PriceHistory{Token: req.Address, History: []model.PricePoint{{Timestamp: req.From, Price: "1.0000 USD"}}}, nil
}

func (f *fakeSource) TokenMetadata(_ context.Context, address string) (model.TokenMetadata, error) {
	return model.TokenMetadata{Address: address, Symbol: "PUMP"}, nil
}

func newRegistry(t *testing.T, src *fakeSource, allow []string) *Registry {
	t.Helper()
	r := NewRegistry(allow, nil)
	now := func() time.Time { return time.Unix(1738647000, 0) }
	for _, h := range []Handler{UserTrades{Source: src}, PriceHistory{Source: src, Now: now}, TokenInfo{Source: src}, OffTopic{}} {
		require.NoError(t, r.Register(h))
	}
	return r
}

func TestSpecsKeepRegistrationOrder(t *testing.T) {
	r := newRegistry(t, &fakeSource{}, nil)
	names := make([]string, 0)
	for _, s := range r.Specs() {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"get_user_trades", "get_price_history", "get_token_info", "off_topic"}, names)
	assert.Equal(t, []string{"wallet_address"}, r.Specs()[0].Parameters.Required)
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	r := NewRegistry(nil, nil)
	require.NoError(t, r.Register(OffTopic{}))
	assert.Error(t, r.Register(OffTopic{}))
}

func TestAllowlistFiltersTools(t *testing.T) {
	r := newRegistry(t, &fakeSource{}, []string{"off_topic"})
	require.Len(t, r.Specs(), 1)
	res := r.Dispatch(context.Background(), model.ToolInvocation{Name: "get_user_trades", Arguments: map[string]any{"wallet_address": wallet}})
	assert.Equal(t, "function not found: get_user_trades", res.Content)
}

func TestDispatchUnknownTool(t *testing.T) {
	r := newRegistry(t, &fakeSource{}, nil)
	res := r.Dispatch(context.Background(), model.ToolInvocation{ID: "c1", Name: "get_weather"})
	assert.Equal(t, "get_weather", res.Name)
	assert.Equal(t, "c1", res.CallID)
	assert.Contains(t, res.Content, "get_weather")
	assert.Contains(t, res.Content, "not found")
}

func TestDispatchMissingArgument(t *testing.T) {
	src := &fakeSource{}
	r := newRegistry(t, src, nil)
	res := r.Dispatch(context.Background(), model.ToolInvocation{Name: "get_user_trades", Arguments: map[string]any{"email": "a@b.c"}})
	assert.Equal(t, "wallet_address required", res.Content)
	assert.Zero(t, atomic.LoadInt32(&src.calls))

	res = r.Dispatch(context.Background(), model.ToolInvocation{Name: "get_price_history"})
	assert.Equal(t, "token_address required", res.Content)
}

func TestDispatchTradesIsRepeatable(t *testing.T) {
	src := &fakeSource{trades: []model.SwapTransaction{{Source: "JUPITER", RelativeAge: "1 day ago"}}}
	r := newRegistry(t, src, nil)
	inv := model.ToolInvocation{Name: "get_user_trades", Arguments: map[string]any{"wallet_address": wallet}}
	first := r.Dispatch(context.Background(), inv)
	second := r.Dispatch(context.Background(), inv)
	assert.Equal(t, first, second)

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal([]byte(first.Content), &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "JUPITER", decoded[0]["source"])
}

func TestDispatchReportsFailures(t *testing.T) {
	src := &fakeSource{tradeErr: clierr.New(clierr.CodeUpstream, "unexpected status 500")}
	r := newRegistry(t, src, nil)
	res := r.Dispatch(context.Background(), model.ToolInvocation{Name: "get_user_trades", Arguments: map[string]any{"wallet_address": wallet}})
	assert.Equal(t, "get_user_trades failed: unexpected status 500", res.Content)

	src.tradeErr = nil
	res = r.Dispatch(context.Background(), model.ToolInvocation{Name: "get_user_trades", Arguments: map[string]any{"wallet_address": wallet}})
	assert.Contains(t, res.Content, "no data available")
}

func TestPriceHistoryDefaults(t *testing.T) {
	src := &fakeSource{}
	r := newRegistry(t, src, nil)
	res := r.Dispatch(context.Background(), model.ToolInvocation{Name: "get_price_history", Arguments: map[string]any{"token_address": token}})
	assert.Contains(t, res.Content, token)
	assert.Equal(t, int64(1738645200), src.lastPrice.To, "end truncated to the hour")
	assert.Equal(t, int64(1738645200-7*24*3600), src.lastPrice.From)
	assert.Equal(t, "12H", src.lastPrice.Interval)

	r.Dispatch(context.Background(), model.ToolInvocation{Name: "get_price_history", Arguments: map[string]any{
		"token_address": token, "time_from": float64(100), "time_to": "200", "interval": "1D",
	}})
	assert.Equal(t, int64(100), src.lastPrice.From)
	assert.Equal(t, int64(200), src.lastPrice.To)
	assert.Equal(t, "1D", src.lastPrice.Interval)

	res = r.Dispatch(context.Background(), model.ToolInvocation{Name: "get_price_history", Arguments: map[string]any{
		"token_address": token, "time_from": float64(300), "time_to": float64(200),
	}})
	assert.Contains(t, res.Content, "time_from")
}

func TestOffTopic(t *testing.T) {
	r := newRegistry(t, &fakeSource{}, nil)
	res := r.Dispatch(context.Background(), model.ToolInvocation{Name: "off_topic"})
	assert.Equal(t, offTopicGuidance, res.Content)
}

type countingPrices struct{ calls int32 }

func (c *countingPrices) Info() model.ProviderInfo { return model.ProviderInfo{Name: "counting"} }

func (c *countingPrices) PriceHistory(_ context.Context, req model.PriceHistoryRequest) ([]providers.RawPricePoint, error) {
	atomic.AddInt32(&c.calls, 1)
	return []providers.RawPricePoint{{UnixTime: req.From, Value: 1.5}}, nil
}

func TestDefaultPriceWindowHitsCache(t *testing.T) {
	current := time.Unix(1738647000, 0)
	now := func() time.Time { return current }
	upstream := &countingPrices{}
	data := chaindata.New(nil, upstream, nil, cache.NewMemory(), chaindata.WithClock(now))

	r := NewRegistry(nil, nil)
	require.NoError(t, r.Register(PriceHistory{Source: data, Now: now}))

	inv := model.ToolInvocation{Name: "get_price_history", Arguments: map[string]any{"token_address": token}}
	first := r.Dispatch(context.Background(), inv)
	current = current.Add(2 * time.Second)
	second := r.Dispatch(context.Background(), inv)

	assert.Equal(t, int32(1), atomic.LoadInt32(&upstream.calls))
	assert.Equal(t, first.Content, second.Content)
}
