package chaindata

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ggonzalez94/solchat/internal/cache"
	clierr "github.com/ggonzalez94/solchat/internal/errors"
	"github.com/ggonzalez94/solchat/internal/id"
	"github.com/ggonzalez94/solchat/internal/model"
	"github.com/ggonzalez94/solchat/internal/providers"
	"github.com/ggonzalez94/solchat/internal/swaps"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	transactionsTag = "filtered-transactions"
	metadataTag     = "token-metadata"
	enrichWorkers   = 4

	defaultFetchTimeout = 2 * time.Minute
)

type TTLs struct {
	PriceHistory time.Duration
	Metadata     time.Duration
	Transactions time.Duration
}

func DefaultTTLs() TTLs {
	return TTLs{
		PriceHistory: 3 * time.Hour,
		Metadata:     60 * time.Second,
		Transactions: time.Hour,
	}
}

// Client reads wallet activity, price history and token metadata through the cache.
type Client struct {
	indexer  providers.TransactionIndexer
	prices   providers.PriceHistoryProvider
	metadata providers.TokenMetadataProvider
	store    cache.Store

	ttl          TTLs
	chain        string
	currency     string
	fetchTimeout time.Duration
	now          func() time.Time
	logger       *zap.Logger
	group        singleflight.Group
}

type Option func(*Client)

func WithTTLs(ttl TTLs) Option {
	return func(c *Client) { c.ttl = ttl }
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
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

// WithFetchTimeout bounds one shared upstream fetch. Fetches are shared by
// every caller waiting on the same key, so no single caller's context may end them.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.fetchTimeout = d
		}
	}
}

// WithMarket sets the chain and quote currency used for price lookups.
func WithMarket(chain, currency string) Option {
	return func(c *Client) {
		if chain != "" {
			c.chain = chain
		}
		if currency != "" {
			c.currency = currency
		}
	}
}

// New builds a Client. store may be nil to disable caching; metadata may be
// nil to skip enrichment.
func New(indexer providers.TransactionIndexer, prices providers.PriceHistoryProvider, metadata providers.TokenMetadataProvider, store cache.Store, opts ...Option) *Client {
	c := &Client{
		indexer:  indexer,
		prices:   prices,
		metadata: metadata,
		store:    store,
		ttl:      DefaultTTLs(),
		chain:        "solana",
		currency:     "USD",
		fetchTimeout: defaultFetchTimeout,
		now:          time.Now,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Providers reports the upstreams behind the client.
func (c *Client) Providers() []model.ProviderInfo {
	out := make([]model.ProviderInfo, 0, 3)
	seen := map[string]bool{}
	for _, p := range []providers.Provider{c.indexer, c.prices, c.metadata} {
		if p == nil {
			continue
		}
		info := p.Info()
		if seen[info.Name] {
			continue
		}
		seen[info.Name] = true
		out = append(out, info)
	}
	return out
}

type cachedSwaps struct {
	Wallet string                  `json:"wallet"`
	Swaps  []model.SwapTransaction `json:"swaps"`
}

// WalletTransactions returns the analyzed swaps of wallet. Cached lists are
// returned as stored, with relative ages recomputed.
func (c *Client) WalletTransactions(ctx context.Context, wallet string) ([]model.SwapTransaction, error) {
	if c.indexer == nil {
		return nil, clierr.New(clierr.CodeInternal, "transaction indexer is not configured")
	}
	key := transactionsTag + ":" + wallet

	var hit cachedSwaps
	if c.lookup(ctx, key, c.ttl.Transactions, &hit) {
		swaps.RefreshAges(hit.Swaps, c.now())
		return hit.Swaps, nil
	}

	v, err := c.shared(ctx, key, func(ctx context.Context) (any, error) {
		raw, err := c.indexer.WalletTransactions(ctx, wallet)
		if err != nil {
			return nil, err
		}
		report := swaps.Analyze(raw, wallet, c.now())
		for _, skip := range report.Skipped {
			c.logger.Warn("skipped transaction",
				zap.String("wallet", wallet),
				zap.String("signature", skip.Signature),
				zap.Error(skip.Err),
			)
		}
		c.enrich(ctx, report.Swaps)
		c.save(ctx, key, cachedSwaps{Wallet: wallet, Swaps: report.Swaps})
		return report.Swaps, nil
	})
	if err != nil {
		return nil, err
	}
	out := append([]model.SwapTransaction(nil), v.([]model.SwapTransaction)...)
	return out, nil
}

// PriceHistory returns formatted price points. A CodeNotFound error means the
// upstream had no data; such answers are not cached.
func (c *Client) PriceHistory(ctx context.Context, req model.PriceHistoryRequest) (model.PriceHistory, error) {
	if c.prices == nil {
		return model.PriceHistory{}, clierr.New(clierr.CodeInternal, "price provider is not configured")
	}
	if req.AddressType == "" {
		req.AddressType = "token"
	}
	if req.Chain == "" {
		req.Chain = c.chain
	}
	if req.Currency == "" {
		req.Currency = c.currency
	}
	key := PriceHistoryKey(req)

	var hit model.PriceHistory
	if c.lookup(ctx, key, c.ttl.PriceHistory, &hit) {
		if len(hit.History) == 0 {
			return model.PriceHistory{}, clierr.New(clierr.CodeNotFound, fmt.Sprintf("no price history for %s", req.Address))
		}
		return hit, nil
	}

	v, err := c.shared(ctx, key, func(ctx context.Context) (any, error) {
		points, err := c.prices.PriceHistory(ctx, req)
		if err != nil {
			return nil, err
		}
		fetched := c.now().UTC()
		history := model.PriceHistory{
			Token:     req.Address,
			FetchTime: fetched.Format(time.RFC3339),
			History:   FormatPoints(points, req.Currency),
		}
		c.save(ctx, key, history)
		return history, nil
	})
	if err != nil {
		return model.PriceHistory{}, err
	}
	return v.(model.PriceHistory), nil
}

func (c *Client) TokenMetadata(ctx context.Context, address string) (model.TokenMetadata, error) {
	if c.metadata == nil {
		return model.TokenMetadata{}, clierr.New(clierr.CodeInternal, "metadata provider is not configured")
	}
	key := metadataTag + ":" + address

	var hit model.TokenMetadata
	if c.lookup(ctx, key, c.ttl.Metadata, &hit) {
		return hit, nil
	}
	v, err := c.shared(ctx, key, func(ctx context.Context) (any, error) {
		meta, err := c.metadata.TokenMetadata(ctx, address)
		if err != nil {
			return nil, err
		}
		c.save(ctx, key, meta)
		return meta, nil
	})
	if err != nil {
		return model.TokenMetadata{}, err
	}
	return v.(model.TokenMetadata), nil
}

// shared runs fetch once per key for all concurrent callers. The fetch gets a
// context detached from ctx; each caller stops waiting when its own ctx ends.
func (c *Client) shared(ctx context.Context, key string, fetch func(context.Context) (any, error)) (any, error) {
	ch := c.group.DoChan(key, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
		defer cancel()
		return fetch(fctx)
	})
	select {
	case <-ctx.Done():
		return nil, clierr.Wrap(clierr.CodeCancelled, "wait for "+key, ctx.Err())
	case res := <-ch:
		return res.Val, res.Err
	}
}

// PriceHistoryKey concatenates every query parameter of req.
func PriceHistoryKey(req model.PriceHistoryRequest) string {
	return fmt.Sprintf("%s-%s-%s-%d-%d-%s-%s", req.Address, req.AddressType, req.Interval, req.From, req.To, req.Chain, req.Currency)
}

func FormatPoints(points []providers.RawPricePoint, currency string) []model.PricePoint {
	out := make([]model.PricePoint, 0, len(points))
	for _, p := range points {
		out = append(out, model.PricePoint{
			Time:      time.Unix(p.UnixTime, 0).UTC().Format("2006-01-02 15:04:05"),
			Timestamp: p.UnixTime,
			Value:     p.Value,
			Price:     fmt.Sprintf("%.4f %s", p.Value, currency),
		})
	}
	return out
}

// enrich resolves metadata for every valid mint with bounded concurrency.
// Failures leave the address as the symbol.
func (c *Client) enrich(ctx context.Context, list []model.SwapTransaction) {
	if c.metadata == nil || len(list) == 0 {
		return
	}
	var mu sync.Mutex
	resolved := map[string]model.TokenMetadata{}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(enrichWorkers)
	for _, address := range swaps.Addresses(list) {
		if !id.IsAddress(address) {
			continue
		}
		address := address
		g.Go(func() error {
			meta, err := c.TokenMetadata(gctx, address)
			if err != nil {
				c.logger.Debug("token metadata unavailable", zap.String("address", address), zap.Error(err))
				return nil
			}
			mu.Lock()
			resolved[address] = meta
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	swaps.Enrich(list, func(address string) (model.TokenMetadata, bool) {
		meta, ok := resolved[address]
		return meta, ok
	})
}

// lookup decodes a fresh entry into out. Unreadable entries count as misses.
func (c *Client) lookup(ctx context.Context, key string, ttl time.Duration, out any) bool {
	if c.store == nil {
		return false
	}
	entry, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn("cache read failed", zap.String("cache_key", key), zap.Error(err))
		return false
	}
	if !ok || !cache.Fresh(entry, ttl, c.now()) {
		c.logger.Debug("cache miss", zap.String("cache_key", key))
		return false
	}
	if err := json.Unmarshal(entry.Value, out); err != nil {
		c.logger.Warn("cache entry unreadable", zap.String("cache_key", key), zap.Error(err))
		return false
	}
	c.logger.Debug("cache hit", zap.String("cache_key", key))
	return true
}

func (c *Client) save(ctx context.Context, key string, v any) {
	if c.store == nil {
		return
	}
	buf, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn("cache encode failed", zap.String("cache_key", key), zap.Error(err))
		return
	}
	if err := c.store.Put(ctx, key, buf, c.now()); err != nil {
		c.logger.Warn("cache write failed", zap.String("cache_key", key), zap.Error(err))
	}
}
