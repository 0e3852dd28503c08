package swaps

import (
	"fmt"
	"math"
	"strings"
	"time"

	clierr "github.com/ggonzalez94/solchat/internal/errors"
	"github.com/ggonzalez94/solchat/internal/id"
	"github.com/ggonzalez94/solchat/internal/model"
	"github.com/ggonzalez94/solchat/internal/providers"
)

// Skipped records a transaction dropped because of degenerate amounts.
type Skipped struct {
	Signature string
	Err       error
}

type Report struct {
	Swaps   []model.SwapTransaction
	Skipped []Skipped
}

// Analyze turns raw indexer records into the swaps attributed to wallet.
// Output order follows input order.
func Analyze(txs []providers.RawTransaction, wallet string, now time.Time) Report {
	report := Report{Swaps: make([]model.SwapTransaction, 0, len(txs))}
	for _, tx := range txs {
		if !strings.EqualFold(strings.TrimSpace(tx.Type), "swap") || tx.Timestamp == nil {
			continue
		}
		swap, ok, err := analyzeOne(tx, wallet, now)
		if err != nil {
			report.Skipped = append(report.Skipped, Skipped{Signature: tx.Signature, Err: err})
			continue
		}
		if ok {
			report.Swaps = append(report.Swaps, swap)
		}
	}
	return report
}

func analyzeOne(tx providers.RawTransaction, wallet string, now time.Time) (model.SwapTransaction, bool, error) {
	sold := make([]model.TokenFlow, 0)
	bought := make([]model.TokenFlow, 0)

	if ev := tx.SwapEvent; ev != nil {
		if ev.NativeInput != nil {
			flow, err := nativeFlow(ev.NativeInput)
			if err != nil {
				return model.SwapTransaction{}, false, err
			}
			sold = append(sold, flow)
		}
		if ev.NativeOutput != nil {
			flow, err := nativeFlow(ev.NativeOutput)
			if err != nil {
				return model.SwapTransaction{}, false, err
			}
			bought = append(bought, flow)
		}
	}

	for _, tr := range tx.TokenTransfers {
		var dst *[]model.TokenFlow
		switch {
		case tr.FromUserAccount == wallet:
			dst = &sold
		case tr.ToUserAccount == wallet:
			dst = &bought
		default:
			continue
		}
		amount, err := tr.TokenAmount.Float64()
		if err != nil {
			return model.SwapTransaction{}, false, clierr.Wrap(clierr.CodeInvalidAmount, fmt.Sprintf("invalid token amount %q", tr.TokenAmount), err)
		}
		if !finite(amount) {
			return model.SwapTransaction{}, false, clierr.New(clierr.CodeInvalidAmount, fmt.Sprintf("token amount %q is not finite", tr.TokenAmount))
		}
		mint := tr.Mint
		if mint == "" {
			mint = "Unknown Token"
		}
		*dst = append(*dst, model.TokenFlow{Symbol: mint, Address: mint, Amount: amount})
	}

	if len(sold) == 0 && len(bought) == 0 {
		return model.SwapTransaction{}, false, nil
	}

	occurred := time.Unix(*tx.Timestamp, 0).UTC()
	swap := model.SwapTransaction{
		OccurredAt:  occurred,
		RelativeAge: TimeAgo(occurred, now),
		Source:      orDefault(tx.Source, "Unknown"),
		Description: orDefault(tx.Description, "No description available"),
		Sold:        sold,
		Bought:      bought,
	}
	if len(sold) == 1 && len(bought) == 1 {
		price, err := ComputePrice(sold[0], bought[0])
		if err != nil {
			return model.SwapTransaction{}, false, err
		}
		swap.Price = price
	}
	return swap, true, nil
}

func nativeFlow(n *providers.NativeAmount) (model.TokenFlow, error) {
	amount, err := id.LamportsToSOL(string(n.Amount))
	if err != nil {
		return model.TokenFlow{}, err
	}
	if !finite(amount) {
		return model.TokenFlow{}, clierr.New(clierr.CodeInvalidAmount, fmt.Sprintf("lamport amount %q is not finite", n.Amount))
	}
	return model.TokenFlow{Symbol: id.NativeSymbol, Address: id.WrappedSOLMint, Amount: amount}, nil
}

// ComputePrice prices one bought unit in sold units.
func ComputePrice(sold, bought model.TokenFlow) (*model.PriceRatio, error) {
	if bought.Amount == 0 {
		return nil, clierr.New(clierr.CodeInvalidAmount, fmt.Sprintf("bought amount of %s is zero", bought.Symbol))
	}
	if !finite(sold.Amount) || !finite(bought.Amount) {
		return nil, clierr.New(clierr.CodeInvalidAmount, fmt.Sprintf("amounts of %s/%s are not finite", sold.Symbol, bought.Symbol))
	}
	ratio := sold.Amount / bought.Amount
	if !finite(ratio) {
		return nil, clierr.New(clierr.CodeInvalidAmount, fmt.Sprintf("price of %s in %s overflows", bought.Symbol, sold.Symbol))
	}
	return &model.PriceRatio{
		InputSymbol:  sold.Symbol,
		OutputSymbol: bought.Symbol,
		Ratio:        ratio,
		Display:      renderRatio(bought.Symbol, ratio, sold.Symbol),
	}, nil
}

func finite(f float64) bool {
	return !math.IsInf(f, 0) && !math.IsNaN(f)
}

func renderRatio(boughtSymbol string, ratio float64, soldSymbol string) string {
	return fmt.Sprintf("1 %s = %.6f %s", boughtSymbol, ratio, soldSymbol)
}

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
