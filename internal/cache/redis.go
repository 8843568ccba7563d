package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ternarybob/arbor"
)

const (
	redisKeyPrefix = "skillet:cache:"
	redisTagPrefix = "skillet:cachetag:"
)

// redisTier is the shared cache tier. It is optional: when no address is
// configured the service runs memory-only.
type redisTier struct {
	client *redis.Client
	logger arbor.ILogger
}

// newRedisTier connects to the shared tier and verifies the connection
func newRedisTier(ctx context.Context, addr, password string, db int, logger arbor.ILogger) (*redisTier, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return &redisTier{client: client, logger: logger}, nil
}

func (r *redisTier) get(ctx context.Context, key string) (json.RawMessage, bool) {
	data, err := r.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			r.logger.Warn().Err(err).Str("key", key).Msg("Shared cache read failed")
		}
		return nil, false
	}
	return data, true
}

func (r *redisTier) set(ctx context.Context, key string, value json.RawMessage, ttl time.Duration, tags []string) {
	if ttl <= 0 {
		return
	}

	nsKey := redisKeyPrefix + key

	// Monotonic TTL: keep the longer remaining lifetime
	if remaining, err := r.client.TTL(ctx, nsKey).Result(); err == nil && remaining > ttl {
		ttl = remaining
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, nsKey, []byte(value), ttl)
	for _, tag := range tags {
		tagKey := redisTagPrefix + tag
		pipe.SAdd(ctx, tagKey, key)
		// Tag index lives at least as long as its members
		pipe.Expire(ctx, tagKey, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Warn().Err(err).Str("key", key).Msg("Shared cache write failed")
	}
}

func (r *redisTier) delete(ctx context.Context, key string) {
	if err := r.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		r.logger.Warn().Err(err).Str("key", key).Msg("Shared cache delete failed")
	}
}

func (r *redisTier) invalidatePrefix(ctx context.Context, prefix string) int {
	count := 0
	iter := r.client.Scan(ctx, 0, redisKeyPrefix+prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err == nil {
			count++
		}
	}
	if err := iter.Err(); err != nil {
		r.logger.Warn().Err(err).Str("prefix", prefix).Msg("Shared cache prefix scan failed")
	}
	return count
}

func (r *redisTier) invalidateTag(ctx context.Context, tag string) int {
	tagKey := redisTagPrefix + tag
	keys, err := r.client.SMembers(ctx, tagKey).Result()
	if err != nil {
		r.logger.Warn().Err(err).Str("tag", tag).Msg("Shared cache tag lookup failed")
		return 0
	}

	count := 0
	pipe := r.client.TxPipeline()
	for _, key := range keys {
		pipe.Del(ctx, redisKeyPrefix+key)
		count++
	}
	pipe.Del(ctx, tagKey)
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Warn().Err(err).Str("tag", tag).Msg("Shared cache tag invalidation failed")
	}
	return count
}

func (r *redisTier) close() error {
	return r.client.Close()
}
