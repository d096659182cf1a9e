package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis implements Store over a github.com/redis/go-redis/v9 client. This
// is the production shared-KV backend: the spec's rpoplpush/pipelined
// multi-get/hash/list semantics are native Redis commands.
type Redis struct {
	client *redis.Client
}

// RedisConfig configures the connection to the shared KV store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// NewRedis dials the shared KV store.
func NewRedis(cfg RedisConfig) *Redis {
	opts := &redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return &Redis{client: redis.NewClient(opts)}
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("kv: get %s: %w", key, err)
	}
	return v, nil
}

func (r *Redis) SetEX(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("kv: setex %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("kv: del: %w", err)
	}
	return nil
}

func (r *Redis) MGet(ctx context.Context, keys ...string) ([][]byte, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	pipe := r.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(keys))
	for i, k := range keys {
		cmds[i] = pipe.Get(ctx, k)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("kv: mget pipeline: %w", err)
	}

	out := make([][]byte, len(keys))
	for i, cmd := range cmds {
		v, err := cmd.Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("kv: mget %s: %w", keys[i], err)
		}
		out[i] = v
	}
	return out, nil
}

func (r *Redis) HSet(ctx context.Context, key, field string, value []byte) error {
	if err := r.client.HSet(ctx, key, field, value).Err(); err != nil {
		return fmt.Errorf("kv: hset %s.%s: %w", key, field, err)
	}
	return nil
}

func (r *Redis) HGetAll(ctx context.Context, key string) (map[string][]byte, error) {
	res, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("kv: hgetall %s: %w", key, err)
	}
	out := make(map[string][]byte, len(res))
	for k, v := range res {
		out[k] = []byte(v)
	}
	return out, nil
}

func (r *Redis) LPush(ctx context.Context, key string, values ...[]byte) error {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	if err := r.client.LPush(ctx, key, args...).Err(); err != nil {
		return fmt.Errorf("kv: lpush %s: %w", key, err)
	}
	return nil
}

func (r *Redis) RPopLPush(ctx context.Context, src, dst string) ([]byte, error) {
	v, err := r.client.RPopLPush(ctx, src, dst).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("kv: rpoplpush %s->%s: %w", src, dst, err)
	}
	return v, nil
}

func (r *Redis) LRem(ctx context.Context, key string, count int, value []byte) error {
	if err := r.client.LRem(ctx, key, int64(count), value).Err(); err != nil {
		return fmt.Errorf("kv: lrem %s: %w", key, err)
	}
	return nil
}

func (r *Redis) LLen(ctx context.Context, key string) (int64, error) {
	n, err := r.client.LLen(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("kv: llen %s: %w", key, err)
	}
	return n, nil
}

func (r *Redis) SAdd(ctx context.Context, key string, members ...[]byte) error {
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	if err := r.client.SAdd(ctx, key, args...).Err(); err != nil {
		return fmt.Errorf("kv: sadd %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("kv: ping: %w", err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
