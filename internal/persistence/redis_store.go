package persistence

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore is the production KVStore: one Redis hash per bucket
// (offset/spread/delay/new_coin_maker), matching spec.md §6's layout.
// Grounded on the widespread go-redis/v9 use in
// _examples/other_examples/manifests/* (cryptorun, little_cex, cexoms,
// binance-trading-app, cryptofunk) — the teacher itself has no KV store
// with this shape (its JSON file store has no hash-bucket structure).
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore dials Redis at the given URL (redis://host:port/db).
func NewRedisStore(url string) (*RedisStore, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("persistence: parse redis url: %w", err)
	}
	return &RedisStore{client: redis.NewClient(opt)}, nil
}

// Get performs a point HGET on bucket/field.
func (s *RedisStore) Get(ctx context.Context, bucket, field string) (string, bool, error) {
	val, err := s.client.HGet(ctx, bucket, field).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("persistence: hget %s/%s: %w", bucket, field, err)
	}
	return val, true, nil
}

// SetMany performs a single HSET with all buffered fields.
func (s *RedisStore) SetMany(ctx context.Context, bucket string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	if err := s.client.HSet(ctx, bucket, args...).Err(); err != nil {
		return fmt.Errorf("persistence: hset %s (%d fields): %w", bucket, len(fields), err)
	}
	return nil
}

// Close closes the underlying Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
