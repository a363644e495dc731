package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultLockTTL   = 10 * time.Second
	defaultLockRetry = 50 * time.Millisecond
	releaseTimeout   = 2 * time.Second
)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// OrderLock serializes webhook handling for an order across replicas.
type OrderLock struct {
	client *redis.Client
	ttl    time.Duration
	retry  time.Duration
	logger *zap.Logger
}

// NewOrderLock returns redis-backed lock. Zero ttl or retry use defaults.
func NewOrderLock(client *redis.Client, ttl, retry time.Duration, logger *zap.Logger) *OrderLock {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	if retry <= 0 {
		retry = defaultLockRetry
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderLock{client: client, ttl: ttl, retry: retry, logger: logger}
}

func lockKey(orderRef int64) string {
	return fmt.Sprintf("parking:order-lock:%d", orderRef)
}

// Lock polls until the order's key is acquired or ctx is done. The lock expires after
// ttl even if the holder never releases it.
func (l *OrderLock) Lock(ctx context.Context, orderRef int64) (func(), error) {
	key := lockKey(orderRef)
	token := uuid.NewString()

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire %s: %w", key, err)
		}
		if ok {
			return func() { l.release(key, token) }, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (l *OrderLock) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()

	if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
		l.logger.Warn("failed to release order lock", zap.String("key", key), zap.Error(err))
	}
}
