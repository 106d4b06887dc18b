// Package cache holds read-through caches in front of slow collaborators.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alejandrodnm/whalebot/internal/domain"
	"github.com/alejandrodnm/whalebot/internal/ports"
)

const (
	statsKeyPrefix  = "whalebot:stats:"
	DefaultStatsTTL = 15 * time.Minute
)

// RedisStats is a ports.WalletStatsProvider that caches another provider's
// answers in Redis. Cache errors never fail a lookup; they fall through to next.
type RedisStats struct {
	client redis.Cmdable
	next   ports.WalletStatsProvider
	ttl    time.Duration
}

var _ ports.WalletStatsProvider = (*RedisStats)(nil)

// NewRedisClient opens a client; the connection is lazy.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
}

// NewRedisStats wraps next. ttl <= 0 uses DefaultStatsTTL.
func NewRedisStats(client redis.Cmdable, next ports.WalletStatsProvider, ttl time.Duration) *RedisStats {
	if ttl <= 0 {
		ttl = DefaultStatsTTL
	}
	return &RedisStats{client: client, next: next, ttl: ttl}
}

// TraderStats returns the cached snapshot or asks next and caches a non-empty answer.
func (r *RedisStats) TraderStats(ctx context.Context, wallet string) (*domain.WalletStats, error) {
	key := statsKey(wallet)

	if stats, ok := r.lookup(ctx, key); ok {
		return stats, nil
	}

	stats, err := r.next.TraderStats(ctx, wallet)
	if err != nil || stats == nil {
		return stats, err
	}

	if data, err := json.Marshal(stats); err == nil {
		if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
			slog.Debug("cache: stats store failed", "wallet", wallet, "err", err)
		}
	}
	return stats, nil
}

func (r *RedisStats) lookup(ctx context.Context, key string) (*domain.WalletStats, bool) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Debug("cache: stats lookup failed", "key", key, "err", err)
		}
		return nil, false
	}

	var stats domain.WalletStats
	if err := json.Unmarshal(data, &stats); err != nil {
		slog.Debug("cache: corrupt stats entry", "key", key, "err", err)
		return nil, false
	}
	return &stats, true
}

// Ping checks connectivity; main uses it to decide whether to enable the cache.
func Ping(ctx context.Context, client redis.Cmdable) error {
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("cache.Ping: %w", err)
	}
	return nil
}

func statsKey(wallet string) string {
	return statsKeyPrefix + strings.ToLower(wallet)
}
