package helius

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	clierr "github.com/ggonzalez94/solchat/internal/errors"
	"github.com/ggonzalez94/solchat/internal/httpx"
	"github.com/ggonzalez94/solchat/internal/model"
	"github.com/ggonzalez94/solchat/internal/providers"
	"go.uber.org/zap"
)

const (
	defaultBase = "https://api.helius.xyz"
	pageSize    = 100
)

type Client struct {
	http    *httpx.Client
	baseURL string
	apiKey  string
	pages   int
	logger  *zap.Logger
}

type Option func(*Client)

func WithBaseURL(base string) Option {
	return func(c *Client) {
		if strings.TrimSpace(base) != "" {
			c.baseURL = strings.TrimRight(strings.TrimSpace(base), "/")
		}
	}
}

// WithPages bounds how many pages WalletTransactions follows via the before cursor.
func WithPages(pages int) Option {
	return func(c *Client) {
		if pages > 0 {
			c.pages = pages
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func New(httpClient *httpx.Client, apiKey string, opts ...Option) *Client {
	c := &Client{
		http:    httpClient,
		baseURL: defaultBase,
		apiKey:  strings.TrimSpace(apiKey),
		pages:   1,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Info() model.ProviderInfo {
	return model.ProviderInfo{
		Name:          "helius",
		Type:          "indexer",
		RequiresKey:   true,
		KeyEnvVarName: "SOLCHAT_HELIUS_API_KEY",
		Capabilities:  []string{"wallet.transactions"},
	}
}

func (c *Client) WalletTransactions(ctx context.Context, wallet string) ([]providers.RawTransaction, error) {
	if c.apiKey == "" {
		return nil, clierr.New(clierr.CodeAuth, "helius api key is required (SOLCHAT_HELIUS_API_KEY)")
	}
	out := make([]providers.RawTransaction, 0)
	before := ""
	for page := 0; page < c.pages; page++ {
		txs, err := c.fetchPage(ctx, wallet, before)
		if err != nil {
			return nil, err
		}
		for _, tx := range txs {
			if tx.TransactionError != nil {
				continue
			}
			out = append(out, tx.toRaw())
		}
		c.logger.Debug("fetched helius page",
			zap.String("wallet", wallet),
			zap.Int("page", page+1),
			zap.Int("transactions", len(txs)),
		)
		if len(txs) < pageSize {
			break
		}
		before = txs[len(txs)-1].Signature
		if before == "" {
			break
		}
	}
	return out, nil
}

func (c *Client) fetchPage(ctx context.Context, wallet, before string) ([]enhancedTransaction, error) {
	vals := url.Values{}
	vals.Set("api-key", c.apiKey)
	vals.Set("limit", strconv.Itoa(pageSize))
	if before != "" {
		vals.Set("before", before)
	}
	endpoint := fmt.Sprintf("%s/v0/addresses/%s/transactions?%s", c.baseURL, url.PathEscape(wallet), vals.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "build helius request", err)
	}
	var txs []enhancedTransaction
	if _, err := c.http.DoJSON(ctx, req, &txs); err != nil {
		return nil, err
	}
	return txs, nil
}
