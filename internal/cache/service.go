// Package cache provides the two-tier read-through action cache: an
// in-process memory tier backed by an optional shared Redis tier, with
// single-flight production, tag invalidation, and prefix invalidation.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/sync/singleflight"

	"github.com/ternarybob/skillet/internal/common"
	"github.com/ternarybob/skillet/internal/interfaces"
)

// Service implements interfaces.CacheService
type Service struct {
	memory *memoryTier
	shared *redisTier // nil when running memory-only
	group  singleflight.Group
	logger arbor.ILogger

	defaultTTL time.Duration
	memoryTTL  time.Duration
}

// NewService builds the cache from config. When the shared tier is
// unreachable the service degrades to memory-only with a warning rather
// than failing startup.
func NewService(ctx context.Context, config *common.CacheConfig, logger arbor.ILogger) *Service {
	s := &Service{
		memory:     newMemoryTier(config.MaxMemoryKeys),
		logger:     logger,
		defaultTTL: common.Duration(config.DefaultTTL, 10*time.Minute),
		memoryTTL:  common.Duration(config.MemoryTTL, time.Minute),
	}

	if config.RedisAddr != "" {
		shared, err := newRedisTier(ctx, config.RedisAddr, config.RedisPassword, config.RedisDB, logger)
		if err != nil {
			logger.Warn().Err(err).Str("addr", config.RedisAddr).
				Msg("Shared cache tier unavailable - running memory-only")
		} else {
			s.shared = shared
			logger.Info().Str("addr", config.RedisAddr).Msg("Shared cache tier connected")
		}
	}

	return s
}

// GetOrSet returns the cached value for key, producing it via fallback on a
// miss. Concurrent callers for the same key share one fallback invocation.
// A failed fallback caches nothing; the next caller retries.
func (s *Service) GetOrSet(ctx context.Context, key string, fallback interfaces.FallbackFunc, opts *interfaces.CacheOptions) (json.RawMessage, error) {
	if key == "" {
		return nil, fmt.Errorf("cache key is required")
	}

	if value, ok := s.memory.get(key); ok {
		return value, nil
	}
	if s.shared != nil {
		if value, ok := s.shared.get(ctx, key); ok {
			// Promote to the memory tier so repeat reads stay in-process
			s.memory.set(key, value, s.resolveMemoryTTL(opts), s.resolveTags(opts))
			return value, nil
		}
	}

	result, err, _ := s.group.Do(key, func() (interface{}, error) {
		// A concurrent producer may have finished while we queued
		if value, ok := s.memory.get(key); ok {
			return value, nil
		}

		produced, err := fallback(ctx)
		if err != nil {
			return nil, err
		}

		value, err := json.Marshal(produced)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal cache value for %s: %w", key, err)
		}

		tags := s.resolveTags(opts)
		s.memory.set(key, value, s.resolveMemoryTTL(opts), tags)
		if s.shared != nil {
			s.shared.set(ctx, key, value, s.resolveTTL(opts), tags)
		}

		return json.RawMessage(value), nil
	})
	if err != nil {
		return nil, err
	}

	return result.(json.RawMessage), nil
}

// Delete removes a key from both tiers
func (s *Service) Delete(ctx context.Context, key string) error {
	s.memory.delete(key)
	if s.shared != nil {
		s.shared.delete(ctx, key)
	}
	return nil
}

// InvalidateByPattern removes every key sharing the prefix from both tiers
func (s *Service) InvalidateByPattern(ctx context.Context, prefix string) (int, error) {
	if prefix == "" {
		return 0, fmt.Errorf("invalidation prefix is required")
	}

	count := s.memory.invalidatePrefix(prefix)
	if s.shared != nil {
		shared := s.shared.invalidatePrefix(ctx, prefix)
		if shared > count {
			count = shared
		}
	}

	s.logger.Debug().Str("prefix", prefix).Int("count", count).Msg("Cache pattern invalidation")
	return count, nil
}

// InvalidateByTag removes every key registered under the tag from both tiers
func (s *Service) InvalidateByTag(ctx context.Context, tag string) (int, error) {
	if tag == "" {
		return 0, fmt.Errorf("invalidation tag is required")
	}

	count := s.memory.invalidateTag(tag)
	if s.shared != nil {
		shared := s.shared.invalidateTag(ctx, tag)
		if shared > count {
			count = shared
		}
	}

	s.logger.Debug().Str("tag", tag).Int("count", count).Msg("Cache tag invalidation")
	return count, nil
}

// Sweep drops expired memory-tier entries and returns the count. The shared
// tier expires entries itself.
func (s *Service) Sweep() int {
	return s.memory.sweep()
}

// MemorySize returns the memory-tier entry count (metrics)
func (s *Service) MemorySize() int {
	return s.memory.size()
}

// Close releases the shared tier connection
func (s *Service) Close() error {
	if s.shared != nil {
		return s.shared.close()
	}
	return nil
}

func (s *Service) resolveTTL(opts *interfaces.CacheOptions) time.Duration {
	if opts != nil && opts.TTL > 0 {
		return opts.TTL
	}
	return s.defaultTTL
}

func (s *Service) resolveMemoryTTL(opts *interfaces.CacheOptions) time.Duration {
	if opts != nil && opts.MemoryTTL > 0 {
		return opts.MemoryTTL
	}
	return s.memoryTTL
}

func (s *Service) resolveTags(opts *interfaces.CacheOptions) []string {
	if opts == nil {
		return nil
	}
	return opts.Tags
}

// Ensure Service implements CacheService interface
var _ interfaces.CacheService = (*Service)(nil)
