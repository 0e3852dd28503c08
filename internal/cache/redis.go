package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Prefix   string
}

// Redis stores entries as JSON records under a key prefix.
type Redis struct {
	client *redis.Client
	prefix string
}

type redisRecord struct {
	FetchedAt time.Time `json:"fetched_at"`
	Payload   []byte    `json:"payload"`
}

func OpenRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	if cfg.Address == "" {
		return nil, errors.New("redis address is required")
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "solchat:cache:"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return &Redis{client: client, prefix: prefix}, nil
}

func (r *Redis) Get(ctx context.Context, key string) (Entry, bool, error) {
	raw, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("cache read: %w", err)
	}
	var rec redisRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Entry{}, false, nil
	}
	return Entry{Key: key, Value: rec.Payload, FetchedAt: rec.FetchedAt}, true, nil
}

func (r *Redis) Put(ctx context.Context, key string, value []byte, fetchedAt time.Time) error {
	buf, err := json.Marshal(redisRecord{FetchedAt: fetchedAt.UTC(), Payload: value})
	if err != nil {
		return fmt.Errorf("encode cache record: %w", err)
	}
	if err := r.client.Set(ctx, r.prefix+key, buf, 0).Err(); err != nil {
		return fmt.Errorf("cache write: %w", err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
