package storage

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/redis/go-redis/v9"
)

// RedisKV maps each bucket onto one Redis hash.
type RedisKV struct {
	client *redis.Client
	prefix string
}

func NewRedisKV(client *redis.Client, prefix string) *RedisKV {
	return &RedisKV{client: client, prefix: prefix}
}

func (r *RedisKV) hash(bucket string) string {
	return r.prefix + bucket
}

func (r *RedisKV) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	v, err := r.client.HGet(ctx, r.hash(bucket), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s/%s: %w", bucket, key, err)
	}
	return v, nil
}

func (r *RedisKV) Put(ctx context.Context, bucket, key string, value []byte) error {
	if err := r.client.HSet(ctx, r.hash(bucket), key, value).Err(); err != nil {
		return fmt.Errorf("writing %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (r *RedisKV) List(ctx context.Context, bucket string) ([][]byte, error) {
	all, err := r.client.HGetAll(ctx, r.hash(bucket)).Result()
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", bucket, err)
	}

	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	out := make([][]byte, 0, len(keys))
	for _, k := range keys {
		out = append(out, []byte(all[k]))
	}
	return out, nil
}
