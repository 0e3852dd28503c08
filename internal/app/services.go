package app

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/ggonzalez94/solchat/internal/agent"
	"github.com/ggonzalez94/solchat/internal/cache"
	"github.com/ggonzalez94/solchat/internal/chaindata"
	"github.com/ggonzalez94/solchat/internal/config"
	"github.com/ggonzalez94/solchat/internal/conversation"
	clierr "github.com/ggonzalez94/solchat/internal/errors"
	"github.com/ggonzalez94/solchat/internal/httpx"
	"github.com/ggonzalez94/solchat/internal/llm/gemini"
	"github.com/ggonzalez94/solchat/internal/llm/openai"
	"github.com/ggonzalez94/solchat/internal/providers/birdeye"
	"github.com/ggonzalez94/solchat/internal/providers/helius"
	"github.com/ggonzalez94/solchat/internal/tools"
)

// services holds everything a command may need, built lazily so that
// offline commands never open stores or touch the network.
type services struct {
	settings config.Settings
	logger   *zap.Logger

	cache         cache.Store
	conversations conversation.Store
	data          *chaindata.Client
	registry      *tools.Registry
	agent         *agent.Agent
}

func (s *services) dataClient(ctx context.Context) (*chaindata.Client, error) {
	if s.data != nil {
		return s.data, nil
	}
	store, err := s.cacheStore(ctx)
	if err != nil {
		return nil, err
	}
	s.data = s.newDataClient(store)
	return s.data, nil
}

// newDataClient wires the upstream providers. store may be nil.
func (s *services) newDataClient(store cache.Store) *chaindata.Client {
	httpClient := httpx.New(s.settings.Timeout, s.settings.Retries, httpx.WithLogger(s.logger))
	indexer := helius.New(httpClient, s.settings.Helius.APIKey,
		helius.WithBaseURL(s.settings.Helius.BaseURL),
		helius.WithPages(s.settings.Helius.Pages),
		helius.WithLogger(s.logger),
	)
	market := birdeye.New(httpClient, s.settings.Birdeye.APIKey, s.settings.Birdeye.Chain)
	if s.settings.Birdeye.BaseURL != "" {
		market.SetBaseURL(s.settings.Birdeye.BaseURL)
	}

	return chaindata.New(indexer, market, market, store,
		chaindata.WithTTLs(chaindata.TTLs{
			PriceHistory: s.settings.Cache.PriceTTL,
			Metadata:     s.settings.Cache.MetadataTTL,
			Transactions: s.settings.Cache.TransactionsTTL,
		}),
		chaindata.WithMarket(s.settings.Birdeye.Chain, s.settings.Birdeye.Currency),
		chaindata.WithLogger(s.logger),
		chaindata.WithFetchTimeout(s.settings.ExchangeTimeout),
	)
}

// cacheStore returns nil when caching is disabled.
func (s *services) cacheStore(ctx context.Context) (cache.Store, error) {
	if !s.settings.Cache.Enabled {
		return nil, nil
	}
	if s.cache != nil {
		return s.cache, nil
	}
	cfg := s.settings.Cache
	switch cfg.Backend {
	case "memory":
		s.cache = cache.NewMemory()
	case "redis":
		store, err := cache.OpenRedis(ctx, cache.RedisConfig{
			Address:  cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeInternal, "open redis cache", err)
		}
		s.cache = store
	default:
		store, err := cache.OpenSQLite(cfg.Path, cfg.LockPath)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeInternal, "open cache", err)
		}
		s.cache = store
	}
	return s.cache, nil
}

func (s *services) conversationStore() (conversation.Store, error) {
	if s.conversations != nil {
		return s.conversations, nil
	}
	cfg := s.settings.Conversations
	switch cfg.Backend {
	case "memory":
		s.conversations = conversation.NewMemory()
	case "bolt":
		store, err := conversation.OpenBolt(cfg.Path)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeInternal, "open conversation store", err)
		}
		s.conversations = store
	default:
		store, err := conversation.OpenSQLite(cfg.Path, cfg.LockPath)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeInternal, "open conversation store", err)
		}
		s.conversations = store
	}
	return s.conversations, nil
}

func (s *services) toolRegistry(ctx context.Context) (*tools.Registry, error) {
	if s.registry != nil {
		return s.registry, nil
	}
	data, err := s.dataClient(ctx)
	if err != nil {
		return nil, err
	}
	reg, err := buildRegistry(s.settings.ToolsEnabled, s.logger, data)
	if err != nil {
		return nil, err
	}
	s.registry = reg
	return reg, nil
}

// buildRegistry registers every tool the allowlist admits. data may be nil
// when only the specs are needed.
func buildRegistry(allowlist []string, logger *zap.Logger, data *chaindata.Client) (*tools.Registry, error) {
	reg := tools.NewRegistry(allowlist, logger)
	handlers := []tools.Handler{
		tools.UserTrades{Source: data},
		tools.PriceHistory{Source: data},
		tools.TokenInfo{Source: data},
		tools.OffTopic{},
	}
	for _, h := range handlers {
		if err := reg.Register(h); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func (s *services) chatAgent(ctx context.Context) (*agent.Agent, error) {
	if s.agent != nil {
		return s.agent, nil
	}
	reg, err := s.toolRegistry(ctx)
	if err != nil {
		return nil, err
	}
	store, err := s.conversationStore()
	if err != nil {
		return nil, err
	}
	s.agent = agent.New(agent.Config{
		MaxRounds: s.settings.Model.MaxRounds,
		Timeout:   s.settings.ExchangeTimeout,
	}, s.modelClient(), reg, store, s.logger)
	return s.agent, nil
}

func (s *services) modelClient() agent.ModelClient {
	m := s.settings.Model
	backoff := httpx.Backoff{Base: m.RetryBase, Max: m.RetryMax, Jitter: httpx.DefaultBackoff().Jitter}
	if m.Provider == "openai" {
		return openai.New(openai.Config{
			BaseURL:           m.BaseURL,
			Model:             m.Name,
			APIKey:            m.APIKey,
			SystemInstruction: m.SystemInstruction,
			Temperature:       m.Temperature,
			TopP:              m.TopP,
			MaxOutputTokens:   m.MaxOutputTokens,
			MaxAttempts:       m.MaxAttempts,
			Backoff:           backoff,
		}, s.logger)
	}
	return gemini.New(gemini.Config{
		BaseURL:           m.BaseURL,
		Model:             m.Name,
		APIKey:            m.APIKey,
		SystemInstruction: m.SystemInstruction,
		Temperature:       m.Temperature,
		TopK:              m.TopK,
		TopP:              m.TopP,
		MaxOutputTokens:   m.MaxOutputTokens,
		MaxAttempts:       m.MaxAttempts,
		Backoff:           backoff,
	}, s.logger)
}

func (s *services) Close() error {
	var errs []error
	if s.cache != nil {
		errs = append(errs, s.cache.Close())
	}
	if s.conversations != nil {
		errs = append(errs, s.conversations.Close())
	}
	return errors.Join(errs...)
}
