package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/liveexchange/auction-backend/internal/infrastructure/config"
)

// NewRedisClient connects a Redis client from configuration and verifies
// the connection with a ping.
func NewRedisClient(cfg *config.RedisConfig, logger *zap.Logger) (*redis.Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	logger.Info("redis connected",
		zap.String("addr", cfg.Address),
		zap.Int("db", cfg.DB),
		zap.Int("pool_size", cfg.PoolSize))

	return client, nil
}

// StatsCounter keeps the advisory connected-user gauge shared across API
// instances. Counts are best-effort and never authoritative.
type StatsCounter struct {
	client *redis.Client
	logger *zap.Logger
}

const connectedUsersKey = "stats:connected_users"

// NewStatsCounter creates a Redis-backed stats counter.
func NewStatsCounter(client *redis.Client, logger *zap.Logger) *StatsCounter {
	return &StatsCounter{client: client, logger: logger}
}

// IncrConnected atomically increments the connected-user gauge.
func (s *StatsCounter) IncrConnected(ctx context.Context) int64 {
	n, err := s.client.Incr(ctx, connectedUsersKey).Result()
	if err != nil {
		s.logger.Warn("connected-user incr failed", zap.Error(err))
		return 0
	}
	return n
}

// DecrConnected atomically decrements the connected-user gauge, clamping
// at zero if the counter drifted.
func (s *StatsCounter) DecrConnected(ctx context.Context) int64 {
	n, err := s.client.Decr(ctx, connectedUsersKey).Result()
	if err != nil {
		s.logger.Warn("connected-user decr failed", zap.Error(err))
		return 0
	}
	if n < 0 {
		s.client.Set(ctx, connectedUsersKey, 0, 0)
		return 0
	}
	return n
}

// Connected reads the current gauge value.
func (s *StatsCounter) Connected(ctx context.Context) int64 {
	n, err := s.client.Get(ctx, connectedUsersKey).Int64()
	if err != nil && err != redis.Nil {
		s.logger.Warn("connected-user read failed", zap.Error(err))
	}
	return n
}

// Close closes the underlying client (used by the composition root).
func Close(client *redis.Client, logger *zap.Logger) {
	if err := client.Close(); err != nil {
		logger.Error("redis close failed", zap.Error(err))
		return
	}
	logger.Info("redis connection closed")
}
