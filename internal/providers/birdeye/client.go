package birdeye

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
)

const defaultBase = "https://public-api.birdeye.so"

type Client struct {
	http    *httpx.Client
	baseURL string
	apiKey  string
	chain   string
}

func New(httpClient *httpx.Client, apiKey, chain string) *Client {
	chain = strings.TrimSpace(chain)
	if chain == "" {
		chain = "solana"
	}
	return &Client{
		http:    httpClient,
		baseURL: defaultBase,
		apiKey:  strings.TrimSpace(apiKey),
		chain:   chain,
	}
}

// SetBaseURL points the client at an alternate host.
func (c *Client) SetBaseURL(base string) {
	if strings.TrimSpace(base) != "" {
		c.baseURL = strings.TrimRight(strings.TrimSpace(base), "/")
	}
}

func (c *Client) Info() model.ProviderInfo {
	return model.ProviderInfo{
		Name:          "birdeye",
		Type:          "market-data",
		RequiresKey:   true,
		KeyEnvVarName: "SOLCHAT_BIRDEYE_API_KEY",
		Capabilities:  []string{"token.price_history", "token.metadata"},
	}
}

type historyResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Items []providers.RawPricePoint `json:"items"`
	} `json:"data"`
}

func (c *Client) PriceHistory(ctx context.Context, req model.PriceHistoryRequest) ([]providers.RawPricePoint, error) {
	addressType := req.AddressType
	if addressType == "" {
		addressType = "token"
	}
	chain := req.Chain
	if chain == "" {
		chain = c.chain
	}
	vals := url.Values{}
	vals.Set("address", req.Address)
	vals.Set("address_type", addressType)
	vals.Set("type", req.Interval)
	vals.Set("time_from", strconv.FormatInt(req.From, 10))
	vals.Set("time_to", strconv.FormatInt(req.To, 10))

	var resp historyResponse
	if err := c.get(ctx, "/defi/history_price", vals, chain, &resp); err != nil {
		return nil, err
	}
	if !resp.Success || len(resp.Data.Items) == 0 {
		return nil, clierr.New(clierr.CodeNotFound, fmt.Sprintf("no price history for %s", req.Address))
	}
	return resp.Data.Items, nil
}

type overviewResponse struct {
	Success bool `json:"success"`
	Data    *struct {
		Address  string   `json:"address"`
		Symbol   string   `json:"symbol"`
		Name     string   `json:"name"`
		Decimals int      `json:"decimals"`
		Price    *float64 `json:"price"`
	} `json:"data"`
}

func (c *Client) TokenMetadata(ctx context.Context, address string) (model.TokenMetadata, error) {
	vals := url.Values{}
	vals.Set("address", address)
	var resp overviewResponse
	if err := c.get(ctx, "/defi/token_overview", vals, c.chain, &resp); err != nil {
		return model.TokenMetadata{}, err
	}
	if !resp.Success || resp.Data == nil || strings.TrimSpace(resp.Data.Symbol) == "" {
		return model.TokenMetadata{}, clierr.New(clierr.CodeNotFound, fmt.Sprintf("no token metadata for %s", address))
	}
	meta := model.TokenMetadata{
		Address:  address,
		Symbol:   resp.Data.Symbol,
		Name:     resp.Data.Name,
		Decimals: resp.Data.Decimals,
		PriceUSD: resp.Data.Price,
	}
	return meta, nil
}

func (c *Client) get(ctx context.Context, path string, vals url.Values, chain string, out any) error {
	if c.apiKey == "" {
		return clierr.New(clierr.CodeAuth, "birdeye api key is required (SOLCHAT_BIRDEYE_API_KEY)")
	}
	endpoint := fmt.Sprintf("%s%s?%s", c.baseURL, path, vals.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return clierr.Wrap(clierr.CodeInternal, "build birdeye request", err)
	}
	req.Header.Set("x-chain", chain)
	req.Header.Set("X-API-KEY", c.apiKey)
	_, err = c.http.DoJSON(ctx, req, out)
	return err
}
