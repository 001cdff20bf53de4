package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Umesh0245/smartfleet1/internal/common/config"
	"github.com/Umesh0245/smartfleet1/internal/common/logger"
	"github.com/Umesh0245/smartfleet1/internal/common/middleware"
)

// opTimeout 单次缓存操作的兜底超时：缓存慢于这个值不如直接回源。
const opTimeout = 200 * time.Millisecond

// Redis go-redis 实现。
// 每个操作都套熔断器：Redis 持续故障时不再反复拨号，直接按 miss 处理。
type Redis struct {
	client  *redis.Client
	breaker *middleware.CircuitBreaker
	log     logger.Logger
}

// NewRedis 创建 Redis 缓存。
func NewRedis(cfg config.CacheConfig, log logger.Logger) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	return &Redis{
		client:  client,
		breaker: middleware.NewCircuitBreaker("cache-redis", 5, 10*time.Second),
		log:     log,
	}
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var val []byte
	err := r.breaker.Call(ctx, func() error {
		b, err := r.client.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return nil // 正常 miss，不算故障
		}
		if err != nil {
			return err
		}
		val = b
		return nil
	})
	if err != nil {
		r.warnf("cache get failed key=%s: %v", key, err)
		return nil, false
	}
	if val == nil {
		return nil, false
	}
	return val, true
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	err := r.breaker.Call(ctx, func() error {
		return r.client.Set(ctx, key, value, ttl).Err()
	})
	if err != nil {
		r.warnf("cache set failed key=%s: %v", key, err)
	}
}

func (r *Redis) Invalidate(ctx context.Context, key string) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	err := r.breaker.Call(ctx, func() error {
		return r.client.Del(ctx, key).Err()
	})
	if err != nil {
		r.warnf("cache invalidate failed key=%s: %v", key, err)
	}
}

// Close 关闭底层连接池。
func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) warnf(format string, args ...interface{}) {
	if r.log != nil {
		r.log.Warnf(format, args...)
	}
}
