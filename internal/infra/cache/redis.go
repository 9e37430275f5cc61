package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bryanwahyu/civic-triage/internal/application"
	domain "github.com/bryanwahyu/civic-triage/internal/domain/analysis"
)

const keyPrefix = "analysis:"

// Redis stores entries as JSON strings with a native TTL.
type Redis struct {
	rdb   redis.UniversalClient
	clock application.Clock
}

func NewRedis(rdb redis.UniversalClient, clock application.Clock) *Redis {
	if clock == nil {
		clock = application.SystemClock{}
	}
	return &Redis{rdb: rdb, clock: clock}
}

// Dial builds a client for addr. An unreachable server is only logged: the
// client reconnects on use and lookups fail as misses until then.
func Dial(ctx context.Context, addr, password string, db int, logger *slog.Logger) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	ctx2, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx2).Err(); err != nil && logger != nil {
		logger.Warn("redis unreachable, cache lookups will miss until it recovers", "addr", addr, "error", err)
	}
	return rdb
}

func (c *Redis) Get(ctx context.Context, key string) (*domain.Result, error) {
	raw, err := c.rdb.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("decode cache entry: %w", err)
	}
	return &e.Result, nil
}

func (c *Redis) Set(ctx context.Context, key string, r domain.Result, ttl time.Duration) error {
	b, err := json.Marshal(entry{Result: r, StoredAt: c.clock.Now()})
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, keyPrefix+key, b, ttl).Err()
}

// Ping is used by the readiness probe.
func (c *Redis) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

var _ domain.Cache = (*Redis)(nil)
