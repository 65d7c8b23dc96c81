package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/flowforge/flowforge/types"
)

const redisKeyPrefix = "flowforge:memory:"

// Redis is a Store backed by a Redis instance. Values are JSON-encoded; TTL
// maps directly onto Redis key expiry.
type Redis struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedis creates a Redis-backed store and verifies connectivity.
func NewRedis(ctx context.Context, addr, password string, db int, logger *zap.Logger) (*Redis, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, types.NewError(types.ErrMemoryBackend, "redis ping failed").WithCause(err)
	}
	return &Redis{
		client: client,
		logger: logger.With(zap.String("component", "memory.redis")),
	}, nil
}

func redisKey(namespace, key string) string {
	return redisKeyPrefix + namespace + ":" + key
}

func (s *Redis) Read(ctx context.Context, namespace, key string) (any, bool, error) {
	raw, err := s.client.Get(ctx, redisKey(namespace, key)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, types.NewError(types.ErrMemoryBackend, "redis get failed").WithCause(err)
	}
	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return nil, false, types.NewError(types.ErrMemoryBackend, "decode stored value").WithCause(err)
	}
	return value, true, nil
}

func (s *Redis) ReadAll(ctx context.Context, namespace string) (map[string]any, error) {
	pattern := redisKeyPrefix + namespace + ":*"
	out := make(map[string]any)
	iter := s.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		full := iter.Val()
		raw, err := s.client.Get(ctx, full).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, types.NewError(types.ErrMemoryBackend, "redis get failed").WithCause(err)
		}
		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			s.logger.Warn("skipping undecodable entry", zap.String("key", full), zap.Error(err))
			continue
		}
		out[strings.TrimPrefix(full, redisKeyPrefix+namespace+":")] = value
	}
	if err := iter.Err(); err != nil {
		return nil, types.NewError(types.ErrMemoryBackend, "redis scan failed").WithCause(err)
	}
	return out, nil
}

func (s *Redis) Write(ctx context.Context, namespace, key string, value any, opts WriteOptions) error {
	if !opts.Overwrite {
		existing, ok, err := s.Read(ctx, namespace, key)
		if err != nil {
			return err
		}
		if ok {
			value = MergeValues(existing, value)
		}
	}
	data, err := json.Marshal(value)
	if err != nil {
		return types.NewError(types.ErrMemoryBackend,
			fmt.Sprintf("encode value for %s/%s", namespace, key)).WithCause(err)
	}
	if err := s.client.Set(ctx, redisKey(namespace, key), data, opts.TTL).Err(); err != nil {
		return types.NewError(types.ErrMemoryBackend, "redis set failed").WithCause(err)
	}
	return nil
}

func (s *Redis) Delete(ctx context.Context, namespace, key string) error {
	if err := s.client.Del(ctx, redisKey(namespace, key)).Err(); err != nil {
		return types.NewError(types.ErrMemoryBackend, "redis del failed").WithCause(err)
	}
	return nil
}

func (s *Redis) Close() error {
	return s.client.Close()
}
