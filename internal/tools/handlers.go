package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	clierr "github.com/ggonzalez94/solchat/internal/errors"
	"github.com/ggonzalez94/solchat/internal/id"
	"github.com/ggonzalez94/solchat/internal/model"
)

const (
	defaultInterval  = "12H"
	defaultLookback  = 7 * 24 * time.Hour
	offTopicGuidance = "you should only assist the user with solana trading and wallet related questions. so dont assist! tell them to google it or something."
)

type TradeSource interface {
	WalletTransactions(ctx context.Context, wallet string) ([]model.SwapTransaction, error)
}

type PriceSource interface {
	PriceHistory(ctx context.Context, req model.PriceHistoryRequest) (model.PriceHistory, error)
}

type MetadataSource interface {
	TokenMetadata(ctx context.Context, address string) (model.TokenMetadata, error)
}

// UserTrades looks up the swap history of a wallet.
type UserTrades struct {
	Source TradeSource
}

func (UserTrades) Spec() model.ToolSpec {
	return model.ToolSpec{
		Name:        "get_user_trades",
		Description: "This function must be triggered when you want to lookup users trade history",
		Parameters: model.ToolSchema{
			Type: "object",
			Properties: map[string]model.ToolProperty{
				"wallet_address": {Type: "string", Description: "Wallet address of the user to get the history of trades"},
				"email":          {Type: "string", Description: "user email"},
			},
			Required: []string{"wallet_address"},
		},
	}
}

func (UserTrades) Validate(args map[string]any) error {
	wallet, ok := stringArg(args, "wallet_address")
	if !ok {
		return missing("wallet_address")
	}
	_, err := id.ParseAddress(wallet, "wallet_address")
	return err
}

func (t UserTrades) Execute(ctx context.Context, args map[string]any) (model.ToolResult, error) {
	wallet, _ := stringArg(args, "wallet_address")
	swaps, err := t.Source.WalletTransactions(ctx, wallet)
	if err != nil {
		return model.ToolResult{}, err
	}
	if len(swaps) == 0 {
		return model.ToolResult{}, clierr.New(clierr.CodeNotFound, fmt.Sprintf("no swap transactions found for %s", wallet))
	}
	return jsonResult(swaps)
}

// PriceHistory reports historical prices of a token.
type PriceHistory struct {
	Source PriceSource
	Now    func() time.Time
}

func (PriceHistory) Spec() model.ToolSpec {
	return model.ToolSpec{
		Name:        "get_price_history",
		Description: "Lookup the historical price of a solana token. Defaults to the last 7 days at a 12H interval",
		Parameters: model.ToolSchema{
			Type: "object",
			Properties: map[string]model.ToolProperty{
				"token_address": {Type: "string", Description: "Mint address of the token"},
				"time_from":     {Type: "integer", Description: "Start of the range as unix seconds"},
				"time_to":       {Type: "integer", Description: "End of the range as unix seconds"},
				"interval":      {Type: "string", Description: "Candle interval such as 15m, 1H, 4H, 12H, 1D"},
			},
			Required: []string{"token_address"},
		},
	}
}

func (PriceHistory) Validate(args map[string]any) error {
	token, ok := stringArg(args, "token_address")
	if !ok {
		return missing("token_address")
	}
	if _, err := id.ParseAddress(token, "token_address"); err != nil {
		return err
	}
	from, hasFrom, err := intArg(args, "time_from")
	if err != nil {
		return err
	}
	to, hasTo, err := intArg(args, "time_to")
	if err != nil {
		return err
	}
	if hasFrom && hasTo && from > to {
		return clierr.New(clierr.CodeUsage, "time_from must not be after time_to")
	}
	return nil
}

func (t PriceHistory) Execute(ctx context.Context, args map[string]any) (model.ToolResult, error) {
	now := time.Now
	if t.Now != nil {
		now = t.Now
	}
	token, _ := stringArg(args, "token_address")
	interval, ok := stringArg(args, "interval")
	if !ok {
		interval = defaultInterval
	}
	to, hasTo, _ := intArg(args, "time_to")
	if !hasTo {
		to = model.WindowEnd(now(), interval)
	}
	from, hasFrom, _ := intArg(args, "time_from")
	if !hasFrom {
		from = to - int64(defaultLookback/time.Second)
	}
	history, err := t.Source.PriceHistory(ctx, model.PriceHistoryRequest{
		Address:  token,
		Interval: interval,
		From:     from,
		To:       to,
	})
	if err != nil {
		return model.ToolResult{}, err
	}
	return jsonResult(history)
}

// TokenInfo resolves symbol, name and current price of a mint.
type TokenInfo struct {
	Source MetadataSource
}

func (TokenInfo) Spec() model.ToolSpec {
	return model.ToolSpec{
		Name:        "get_token_info",
		Description: "Lookup the symbol, name and current USD price of a solana token",
		Parameters: model.ToolSchema{
			Type: "object",
			Properties: map[string]model.ToolProperty{
				"token_address": {Type: "string", Description: "Mint address of the token"},
			},
			Required: []string{"token_address"},
		},
	}
}

func (TokenInfo) Validate(args map[string]any) error {
	token, ok := stringArg(args, "token_address")
	if !ok {
		return missing("token_address")
	}
	_, err := id.ParseAddress(token, "token_address")
	return err
}

func (t TokenInfo) Execute(ctx context.Context, args map[string]any) (model.ToolResult, error) {
	token, _ := stringArg(args, "token_address")
	meta, err := t.Source.TokenMetadata(ctx, token)
	if err != nil {
		return model.ToolResult{}, err
	}
	return jsonResult(meta)
}

// OffTopic steers the model back to trading questions.
type OffTopic struct{}

func (OffTopic) Spec() model.ToolSpec {
	return model.ToolSpec{
		Name:        "off_topic",
		Description: "This function must be triggered when the user asks about anything unrelated to solana trading",
		Parameters:  model.ToolSchema{Type: "object"},
	}
}

func (OffTopic) Validate(map[string]any) error { return nil }

func (OffTopic) Execute(context.Context, map[string]any) (model.ToolResult, error) {
	return model.ToolResult{Content: offTopicGuidance}, nil
}

func jsonResult(v any) (model.ToolResult, error) {
	buf, err := json.Marshal(v)
	if err != nil {
		return model.ToolResult{}, clierr.Wrap(clierr.CodeInternal, "encode tool result", err)
	}
	return model.ToolResult{Content: string(buf)}, nil
}
