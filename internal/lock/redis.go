package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/paastest/clustertest/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const defaultRetry = 50 * time.Millisecond

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Locker shared by every process that uses the same Redis and key,
// e.g. several replicas mounting one RWX volume.
// The TTL bounds how long a crashed holder can block the others.
type Redis struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	retry  time.Duration
	log    *logger.Logger
}

func NewRedis(client *redis.Client, key string, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &Redis{client: client, key: key, ttl: ttl, retry: defaultRetry, log: logger.Named("lock")}
}

func (r *Redis) Lock(ctx context.Context) (func(), error) {
	token := uuid.NewString()
	for {
		ok, err := r.client.SetNX(ctx, r.key, token, r.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, errors.Join(ErrNotAcquired, ctx.Err())
			}
			return nil, fmt.Errorf("redis lock %s: %w", r.key, err)
		}
		if ok {
			return func() { r.release(token) }, nil
		}
		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrNotAcquired, ctx.Err())
		case <-time.After(r.retry):
		}
	}
}

func (r *Redis) release(token string) {
	// the caller's ctx may already be done; release must still reach Redis
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	n, err := releaseScript.Run(ctx, r.client, []string{r.key}, token).Int()
	if err != nil {
		r.log.Warnf("release %s: %v", r.key, err)
		return
	}
	if n == 0 {
		r.log.Warnf("release %s: lock expired before unlock (ttl %s)", r.key, r.ttl)
	}
}
