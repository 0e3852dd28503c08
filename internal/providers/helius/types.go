package helius

import "github.com/ggonzalez94/solchat/internal/providers"

// enhancedTransaction is the subset of a Helius enhanced transaction we decode.
type enhancedTransaction struct {
	Description      string          `json:"description"`
	Type             string          `json:"type"`
	Source           string          `json:"source"`
	Signature        string          `json:"signature"`
	Timestamp        *int64          `json:"timestamp"`
	TokenTransfers   []tokenTransfer `json:"tokenTransfers"`
	TransactionError *txError        `json:"transactionError"`
	Events           events          `json:"events"`
}

type tokenTransfer struct {
	FromUserAccount string           `json:"fromUserAccount"`
	ToUserAccount   string           `json:"toUserAccount"`
	TokenAmount     providers.Amount `json:"tokenAmount"`
	Mint            string           `json:"mint"`
}

type txError struct {
	Error string `json:"error"`
}

type events struct {
	Swap *swapEvent `json:"swap"`
}

type swapEvent struct {
	NativeInput  *nativeAmount `json:"nativeInput"`
	NativeOutput *nativeAmount `json:"nativeOutput"`
}

// nativeAmount carries lamports encoded as a string.
type nativeAmount struct {
	Account string           `json:"account"`
	Amount  providers.Amount `json:"amount"`
}

func (tx enhancedTransaction) toRaw() providers.RawTransaction {
	raw := providers.RawTransaction{
		Signature:      tx.Signature,
		Type:           tx.Type,
		Timestamp:      tx.Timestamp,
		Source:         tx.Source,
		Description:    tx.Description,
		TokenTransfers: make([]providers.TokenTransfer, 0, len(tx.TokenTransfers)),
	}
	if s := tx.Events.Swap; s != nil {
		raw.SwapEvent = &providers.RawSwapEvent{}
		if s.NativeInput != nil {
			raw.SwapEvent.NativeInput = &providers.NativeAmount{Account: s.NativeInput.Account, Amount: s.NativeInput.Amount}
		}
		if s.NativeOutput != nil {
			raw.SwapEvent.NativeOutput = &providers.NativeAmount{Account: s.NativeOutput.Account, Amount: s.NativeOutput.Amount}
		}
	}
	for _, tr := range tx.TokenTransfers {
		raw.TokenTransfers = append(raw.TokenTransfers, providers.TokenTransfer{
			FromUserAccount: tr.FromUserAccount,
			ToUserAccount:   tr.ToUserAccount,
			Mint:            tr.Mint,
			TokenAmount:     tr.TokenAmount,
		})
	}
	return raw
}
