package swaps

import (
	"encoding/json"
	"fmt"
	"math"
	"testing"
	"time"

	clierr "github.com/ggonzalez94/solchat/internal/errors"
	"github.com/ggonzalez94/solchat/internal/id"
	"github.com/ggonzalez94/solchat/internal/model"
	"github.com/ggonzalez94/solchat/internal/providers"
)

const (
	wallet = "CkBWowCj1SFFVDk8Fkn9b2S3gV8kgBm9MEPG2YQvmhFB"
	usdc   = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	bonk   = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"
)

func ts(v int64) *int64 { return &v }

func solToUSDC(at int64) providers.RawTransaction {
	return providers.RawTransaction{
		Signature:   fmt.Sprintf("sig-%d", at),
		Type:        "SWAP",
		Timestamp:   ts(at),
		Source:      "JUPITER",
		Description: "swap",
		SwapEvent:   &providers.RawSwapEvent{NativeInput: &providers.NativeAmount{Account: wallet, Amount: "2000000000"}},
		TokenTransfers: []providers.TokenTransfer{
			{FromUserAccount: "pool", ToUserAccount: wallet, Mint: usdc, TokenAmount: "285"},
		},
	}
}

func TestAnalyzeAttributesFlowsAndPrice(t *testing.T) {
	now := time.Unix(1737772532+90, 0)
	report := Analyze([]providers.RawTransaction{solToUSDC(1737772532)}, wallet, now)
	if len(report.Swaps) != 1 {
		t.Fatalf("expected one swap, got %d", len(report.Swaps))
	}
	s := report.Swaps[0]
	if len(s.Sold) != 1 || s.Sold[0].Symbol != "SOL" || s.Sold[0].Address != id.WrappedSOLMint || s.Sold[0].Amount != 2 {
		t.Fatalf("unexpected sold flows: %+v", s.Sold)
	}
	if len(s.Bought) != 1 || s.Bought[0].Symbol != usdc || s.Bought[0].Amount != 285 {
		t.Fatalf("unexpected bought flows: %+v", s.Bought)
	}
	if s.Price == nil {
		t.Fatal("expected price for one-in one-out swap")
	}
	if math.Abs(s.Price.Ratio-2.0/285.0) > 1e-12 {
		t.Fatalf("unexpected ratio: %v", s.Price.Ratio)
	}
	want := "1 " + usdc + " = 0.007018 SOL"
	if s.Price.Display != want {
		t.Fatalf("unexpected display %q, want %q", s.Price.Display, want)
	}
	if s.RelativeAge != "1 minute ago" {
		t.Fatalf("unexpected age: %q", s.RelativeAge)
	}
}

func TestAnalyzeFiltersRecords(t *testing.T) {
	now := time.Unix(1737772532, 0)
	transfer := solToUSDC(1)
	transfer.Type = "TRANSFER"
	noTimestamp := solToUSDC(2)
	noTimestamp.Timestamp = nil
	lower := solToUSDC(3)
	lower.Type = "swap"
	unrelated := providers.RawTransaction{
		Type:      "SWAP",
		Timestamp: ts(4),
		TokenTransfers: []providers.TokenTransfer{
			{FromUserAccount: "a", ToUserAccount: "b", Mint: usdc, TokenAmount: "1"},
		},
	}

	report := Analyze([]providers.RawTransaction{transfer, noTimestamp, lower, unrelated}, wallet, now)
	if len(report.Swaps) != 1 {
		t.Fatalf("expected only the lowercase swap, got %d", len(report.Swaps))
	}
	if !report.Swaps[0].OccurredAt.Equal(time.Unix(3, 0)) {
		t.Fatalf("unexpected swap kept: %+v", report.Swaps[0])
	}
	if report.Swaps[0].Source != "JUPITER" {
		t.Fatalf("unexpected source %q", report.Swaps[0].Source)
	}
}

func TestAnalyzeMultiFlowHasNoPrice(t *testing.T) {
	tx := solToUSDC(10)
	tx.TokenTransfers = append(tx.TokenTransfers, providers.TokenTransfer{FromUserAccount: "pool", ToUserAccount: wallet, Mint: bonk, TokenAmount: "1000"})
	report := Analyze([]providers.RawTransaction{tx}, wallet, time.Unix(20, 0))
	if len(report.Swaps) != 1 || report.Swaps[0].Price != nil {
		t.Fatalf("expected swap without price, got %+v", report.Swaps)
	}
	if len(report.Swaps[0].Bought) != 2 {
		t.Fatalf("expected two bought flows, got %d", len(report.Swaps[0].Bought))
	}
}

func TestAnalyzeZeroBoughtIsSkipped(t *testing.T) {
	bad := solToUSDC(5)
	bad.TokenTransfers[0].TokenAmount = "0"
	good := solToUSDC(6)
	report := Analyze([]providers.RawTransaction{bad, good}, wallet, time.Unix(100, 0))
	if len(report.Swaps) != 1 || !report.Swaps[0].OccurredAt.Equal(time.Unix(6, 0)) {
		t.Fatalf("expected the batch to continue past the bad transaction, got %+v", report.Swaps)
	}
	if len(report.Skipped) != 1 || !clierr.Is(report.Skipped[0].Err, clierr.CodeInvalidAmount) {
		t.Fatalf("expected invalid amount skip, got %+v", report.Skipped)
	}
}

func TestAnalyzeOutputNeverExceedsInputAndFlowsNonEmpty(t *testing.T) {
	txs := make([]providers.RawTransaction, 0, 30)
	for i := 0; i < 30; i++ {
		tx := solToUSDC(int64(i + 1))
		switch i % 3 {
		case 0:
			tx.SwapEvent = nil
			tx.TokenTransfers = nil
		case 1:
			tx.SwapEvent = nil
		}
		txs = append(txs, tx)
	}
	report := Analyze(txs, wallet, time.Unix(1000, 0))
	if len(report.Swaps) > len(txs) {
		t.Fatalf("output longer than input")
	}
	for _, s := range report.Swaps {
		if len(s.Sold) == 0 && len(s.Bought) == 0 {
			t.Fatalf("swap with no flows: %+v", s)
		}
		if (s.Price != nil) != (len(s.Sold) == 1 && len(s.Bought) == 1) {
			t.Fatalf("price presence mismatch: %+v", s)
		}
	}
}

func TestComputePriceZero(t *testing.T) {
	_, err := ComputePrice(model.TokenFlow{Symbol: "SOL", Amount: 1}, model.TokenFlow{Symbol: "USDC"})
	if !clierr.Is(err, clierr.CodeInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
}

func tokenSwap(at int64, soldAmount, boughtAmount providers.Amount) providers.RawTransaction {
	return providers.RawTransaction{
		Signature: fmt.Sprintf("tok-%d", at),
		Type:      "swap",
		Timestamp: ts(at),
		TokenTransfers: []providers.TokenTransfer{
			{FromUserAccount: wallet, ToUserAccount: "pool", Mint: usdc, TokenAmount: soldAmount},
			{FromUserAccount: "pool", ToUserAccount: wallet, Mint: bonk, TokenAmount: boughtAmount},
		},
	}
}

func TestAnalyzeSkipsNonFiniteAmounts(t *testing.T) {
	txs := []providers.RawTransaction{
		tokenSwap(1, "1e300", "1e-300"),
		tokenSwap(2, "NaN", "5"),
		tokenSwap(3, "10", "Inf"),
		solToUSDC(4),
	}
	report := Analyze(txs, wallet, time.Unix(100, 0))
	if len(report.Swaps) != 1 || report.Swaps[0].Price == nil {
		t.Fatalf("expected only the finite swap to survive, got %+v", report.Swaps)
	}
	if len(report.Skipped) != 3 {
		t.Fatalf("expected three skipped transactions, got %+v", report.Skipped)
	}
	for _, skip := range report.Skipped {
		if !clierr.Is(skip.Err, clierr.CodeInvalidAmount) {
			t.Fatalf("expected invalid amount for %s, got %v", skip.Signature, skip.Err)
		}
	}
	if _, err := json.Marshal(report.Swaps); err != nil {
		t.Fatalf("analyzed batch must stay encodable: %v", err)
	}
}

func TestComputePriceRejectsNonFinite(t *testing.T) {
	cases := []struct {
		sold, bought float64
	}{
		{1e300, 1e-300},
		{math.NaN(), 1},
		{1, math.Inf(1)},
	}
	for _, tc := range cases {
		_, err := ComputePrice(model.TokenFlow{Symbol: "USDC", Amount: tc.sold}, model.TokenFlow{Symbol: "BONK", Amount: tc.bought})
		if !clierr.Is(err, clierr.CodeInvalidAmount) {
			t.Fatalf("sold=%g bought=%g: expected invalid amount, got %v", tc.sold, tc.bought, err)
		}
	}
}
