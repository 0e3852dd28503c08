package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ggonzalez94/solchat/internal/model"
)

type Provider interface {
	Info() model.ProviderInfo
}

// TransactionIndexer lists parsed wallet transactions, newest first.
type TransactionIndexer interface {
	Provider
	WalletTransactions(ctx context.Context, wallet string) ([]RawTransaction, error)
}

type PriceHistoryProvider interface {
	Provider
	// PriceHistory returns upstream points, or a CodeNotFound error when
	// the upstream reports no data.
	PriceHistory(ctx context.Context, req model.PriceHistoryRequest) ([]RawPricePoint, error)
}

type TokenMetadataProvider interface {
	Provider
	TokenMetadata(ctx context.Context, address string) (model.TokenMetadata, error)
}

// RawTransaction is one indexer record, reduced to the fields swap analysis reads.
type RawTransaction struct {
	Signature      string          `json:"signature,omitempty"`
	Type           string          `json:"type"`
	Timestamp      *int64          `json:"timestamp,omitempty"`
	Source         string          `json:"source"`
	Description    string          `json:"description"`
	SwapEvent      *RawSwapEvent   `json:"swap,omitempty"`
	TokenTransfers []TokenTransfer `json:"token_transfers"`
}

type RawSwapEvent struct {
	NativeInput  *NativeAmount `json:"native_input,omitempty"`
	NativeOutput *NativeAmount `json:"native_output,omitempty"`
}

// NativeAmount is a lamport amount tied to an account.
type NativeAmount struct {
	Account string `json:"account"`
	Amount  Amount `json:"amount"`
}

type TokenTransfer struct {
	FromUserAccount string `json:"from_user_account"`
	ToUserAccount   string `json:"to_user_account"`
	Mint            string `json:"mint"`
	TokenAmount     Amount `json:"token_amount"`
}

type RawPricePoint struct {
	UnixTime int64   `json:"unixTime"`
	Value    float64 `json:"value"`
}

// Amount is a decimal value the upstream may encode as a JSON number or string.
type Amount string

func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*a = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = Amount(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("amount must be a number or string: %w", err)
	}
	*a = Amount(n.String())
	return nil
}

func (a Amount) Float64() (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(string(a)), 64)
}
