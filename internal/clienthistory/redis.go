package clienthistory

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/iwvelando/billing-forecast/pkg/constants"
)

// RedisCache caches Lookup results of another Store. Cache failures are
// logged and fall through to the wrapped store.
type RedisCache struct {
	next   Store
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

type cachedLookup struct {
	Defaults Defaults `json:"defaults"`
	Found    bool     `json:"found"`
}

// NewRedisCache wraps next. The cache owns client and closes it on Close.
func NewRedisCache(logger *zap.Logger, next Store, client *redis.Client, ttl time.Duration) *RedisCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCache{next: next, client: client, ttl: ttl, logger: logger}
}

// NewRedisClient builds a client for addr.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// Keys keep the client name verbatim since the stores match it exactly.
func clientKeyPrefix(client string) string {
	return constants.ClientCacheKeyPrefix + client + ":"
}

var globEscaper = strings.NewReplacer(`\`, `\\`, "*", `\*`, "?", `\?`, "[", `\[`, "]", `\]`)

// clientKeyPattern matches every cached lookup of client in a SCAN.
func clientKeyPattern(client string) string {
	return globEscaper.Replace(clientKeyPrefix(client)) + "*"
}

func lookupKey(client string, amount decimal.Decimal) string {
	return clientKeyPrefix(client) + amount.String()
}

// Lookup implements Store.
func (c *RedisCache) Lookup(ctx context.Context, client string, amount decimal.Decimal) (Defaults, bool, error) {
	key := lookupKey(client, amount)

	val, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		var cached cachedLookup
		if jsonErr := json.Unmarshal([]byte(val), &cached); jsonErr == nil {
			return cached.Defaults, cached.Found, nil
		}
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("client history cache unavailable",
			zap.String("op", "clienthistory.RedisCache.Lookup"),
			zap.String("client", client),
			zap.Error(err),
		)
	}

	d, found, err := c.next.Lookup(ctx, client, amount)
	if err != nil {
		return Defaults{}, false, err
	}

	data, err := json.Marshal(cachedLookup{Defaults: d, Found: found})
	if err == nil {
		err = c.client.Set(ctx, key, data, c.ttl).Err()
	}
	if err != nil {
		c.logger.Warn("failed to cache client history lookup",
			zap.String("op", "clienthistory.RedisCache.Lookup"),
			zap.String("client", client),
			zap.Error(err),
		)
	}
	return d, found, nil
}

// Record writes through to the wrapped store and drops the client's cached
// lookups.
func (c *RedisCache) Record(ctx context.Context, p Project) error {
	if err := c.next.Record(ctx, p); err != nil {
		return err
	}
	iter := c.client.Scan(ctx, 0, clientKeyPattern(p.ClientName), 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	err := iter.Err()
	if err == nil && len(keys) > 0 {
		err = c.client.Del(ctx, keys...).Err()
	}
	if err != nil {
		c.logger.Warn("failed to invalidate cached client history",
			zap.String("op", "clienthistory.RedisCache.Record"),
			zap.String("client", p.ClientName),
			zap.Error(err),
		)
	}
	return nil
}

// Stats implements Store.
func (c *RedisCache) Stats(ctx context.Context) (Stats, error) {
	return c.next.Stats(ctx)
}

// Close closes the wrapped store and the redis client.
func (c *RedisCache) Close() error {
	return errors.Join(c.next.Close(), c.client.Close())
}
