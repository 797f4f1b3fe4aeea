package outcome

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis key 前缀
const outcomePrefix = "txflow:outcome"

// 终态结果 TTL（可调）
const (
	succeededTTL = 24 * time.Hour
	failedTTL    = 3 * 24 * time.Hour // 失败结果保留更久，便于排查
	defaultTTL   = 24 * time.Hour
)

// RedisStore 按签名缓存终态结果
type RedisStore struct {
	rdb redis.Cmdable
	ttl time.Duration // 非 0 时覆盖默认 TTL
}

func NewRedisStore(rdb redis.Cmdable, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

// getKey 构造 Redis key
func (r *RedisStore) getKey(signature string) string {
	return fmt.Sprintf("%s:%s", outcomePrefix, signature)
}

// getTTL 成功与失败分开过期
func (r *RedisStore) getTTL(rec *Record) time.Duration {
	if r.ttl > 0 {
		return r.ttl
	}
	switch {
	case rec.Succeeded():
		return succeededTTL
	case rec.Error != "":
		return failedTTL
	default:
		return defaultTTL
	}
}

func (r *RedisStore) Put(ctx context.Context, rec *Record) error {
	val, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode outcome %s: %w", rec.Signature, err)
	}
	if err := r.rdb.Set(ctx, r.getKey(rec.Signature), val, r.getTTL(rec)).Err(); err != nil {
		return fmt.Errorf("redis set error: %w", err)
	}
	return nil
}

// Get 不存在时返回 nil, nil
func (r *RedisStore) Get(ctx context.Context, signature string) (*Record, error) {
	val, err := r.rdb.Get(ctx, r.getKey(signature)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("redis get error: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(val, &rec); err != nil {
		return nil, fmt.Errorf("decode outcome %s: %w", signature, err)
	}
	return &rec, nil
}
