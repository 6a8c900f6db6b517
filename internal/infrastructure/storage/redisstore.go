// Package storage persists the working server set in Redis so a restart
// serves cached results immediately.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	sharedConfig "github.com/proxypulse/proxypulse/internal/shared/config"
	"github.com/proxypulse/proxypulse/internal/shared/logger"

	"github.com/proxypulse/proxypulse/internal/domain/server"
)

// RedisStore stores server lists as JSON blobs. All failures are non-fatal:
// a store whose connection never came up silently answers empty.
type RedisStore struct {
	client *redis.Client
	log    logger.Interface
}

// NewRedisStore connects to Redis. A failed ping is logged and leaves the
// store in no-op mode rather than failing boot.
func NewRedisStore(cfg *sharedConfig.RedisConfig, log logger.Interface) *RedisStore {
	log = log.Named("storage")

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.GetAddr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warnw("failed to connect to redis, persistence disabled",
			"addr", cfg.GetAddr(), "error", err)
		return &RedisStore{log: log}
	}

	log.Infow("connected to redis", "addr", cfg.GetAddr())
	return &RedisStore{client: client, log: log}
}

// SaveServers writes the list under key. A zero ttl means no expiry.
func (s *RedisStore) SaveServers(ctx context.Context, key string, servers []*server.Server, ttl time.Duration) error {
	if s.client == nil {
		return nil
	}

	data, err := json.Marshal(servers)
	if err != nil {
		return fmt.Errorf("failed to marshal servers: %w", err)
	}
	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save servers to redis: %w", err)
	}
	return nil
}

// LoadServers reads the list stored under key. A missing key is not an
// error; it returns nil.
func (s *RedisStore) LoadServers(ctx context.Context, key string) ([]*server.Server, error) {
	if s.client == nil {
		return nil, nil
	}

	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load servers from redis: %w", err)
	}

	var servers []*server.Server
	if err := json.Unmarshal(data, &servers); err != nil {
		return nil, fmt.Errorf("failed to unmarshal servers: %w", err)
	}
	return servers, nil
}

// Close releases the Redis connection.
func (s *RedisStore) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}
