package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	keyPrefix    = "refound:lock:"
	lockTTL      = 30 * time.Second
	retryBackoff = 50 * time.Millisecond
)

// releaseScript deletes the lock only if it still holds our token, so a
// slow holder cannot release a lock that already expired and was
// re-acquired by someone else.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Locker backed by Redis SET NX PX, for deployments where
// more than one process may embed the same item.
type Redis struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// NewRedis connects to Redis and returns a distributed Locker.
func NewRedis(redisURL string, logger *zap.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Redis{rdb: rdb, logger: logger}, nil
}

// Acquire polls SET NX until the key is obtained or ctx is done.
func (r *Redis) Acquire(ctx context.Context, key string) (func(), error) {
	full := keyPrefix + key
	token := uuid.New().String()

	for {
		ok, err := r.rdb.SetNX(ctx, full, token, lockTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryBackoff):
		}
	}

	release := func() {
		// Best effort; the TTL reclaims the lock if this fails.
		if err := releaseScript.Run(context.Background(), r.rdb, []string{full}, token).Err(); err != nil && err != redis.Nil {
			r.logger.Warn("lock release failed", zap.String("key", key), zap.Error(err))
		}
	}
	return release, nil
}

// Close shuts down the Redis connection.
func (r *Redis) Close() error {
	return r.rdb.Close()
}
