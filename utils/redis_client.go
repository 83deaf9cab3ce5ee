package utils

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"camly-reward-system/config"
)

var (
	redisClient *redis.Client
	redisOnce   sync.Once
)

// GetRedis returns a singleton Redis client based on loaded config.
func GetRedis() *redis.Client {
	redisOnce.Do(func() {
		cfg := config.Get()
		redisClient = redis.NewClient(&redis.Options{
			Addr:         net.JoinHostPort(cfg.RedisHost, strconv.Itoa(cfg.RedisPort)),
			Password:     cfg.RedisPassword,
			DB:           cfg.RedisDB,
			DialTimeout:  3 * time.Second,
			ReadTimeout:  2 * time.Second,
			WriteTimeout: 2 * time.Second,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = redisClient.Ping(ctx).Err()
	})
	return redisClient
}

// RedisGate backs the view-cooldown window and the claim submit lock with
// SETNX keys. Fail-open on cooldowns (a Redis outage must not block accrual),
// fail-closed on locks (a claim without the lock risks double settlement).
type RedisGate struct {
	Client *redis.Client
}

// TryAcquire sets the key if absent. Returns true when acquired.
func (g *RedisGate) TryAcquire(key string, ttl time.Duration) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	ok, err := g.Client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return true // fail-open
	}
	return ok
}

// AcquireStrict sets the key if absent, treating Redis errors as "not acquired".
func (g *RedisGate) AcquireStrict(key string, ttl time.Duration) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	ok, err := g.Client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false
	}
	return ok
}

// Release deletes the key.
func (g *RedisGate) Release(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_ = g.Client.Del(ctx, key).Err()
}
