package lock

import (
	"context"
	"sync"
	"time"

	"github.com/Laisky/errors/v2"
	gutils "github.com/Laisky/go-utils/v6"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	"github.com/redis/go-redis/v9"

	rlibs "github.com/Laisky/laisky-blog-moderation/library/db/redis"
	"github.com/Laisky/laisky-blog-moderation/library/log"
)

const defaultRetryInterval = 50 * time.Millisecond

// releaseScript deletes the lease only when it still belongs to the caller.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a lease-based Locker shared by every worker process.
//
// The lease expires after ttl, which must exceed the slowest classifier or
// notification call made while holding it.
type Redis struct {
	rdb           redis.UniversalClient
	ttl           time.Duration
	retryInterval time.Duration
	logger        logSDK.Logger
}

// RedisOption customizes a Redis locker.
type RedisOption func(*Redis)

// WithRetryInterval sets how long Lock waits between acquisition attempts.
func WithRetryInterval(d time.Duration) RedisOption {
	return func(l *Redis) {
		l.retryInterval = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger logSDK.Logger) RedisOption {
	return func(l *Redis) {
		l.logger = logger
	}
}

// NewRedis creates a Redis lease locker.
func NewRedis(rdb redis.UniversalClient, ttl time.Duration, opts ...RedisOption) (*Redis, error) {
	if rdb == nil {
		return nil, errors.New("redis client is required")
	}
	if ttl <= 0 {
		return nil, errors.Errorf("lock ttl must be positive, got %s", ttl)
	}

	l := &Redis{
		rdb:           rdb,
		ttl:           ttl,
		retryInterval: defaultRetryInterval,
		logger:        log.Logger.Named("comment_lock"),
	}
	for _, opt := range opts {
		opt(l)
	}

	return l, nil
}

// Lock implements Locker.
func (l *Redis) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := rlibs.KeyPrefixCommentLock + key
	token := gutils.UUID7()

	for {
		ok, err := l.rdb.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, errors.Wrapf(err, "acquire lock %q", key)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, errors.Wrapf(ctx.Err(), "wait for lock %q", key)
		case <-time.After(l.retryInterval):
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// the caller's ctx may already be cancelled
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := releaseScript.Run(releaseCtx, l.rdb, []string{redisKey}, token).Err(); err != nil {
				l.logger.Warn("release comment lock", zap.String("key", key), zap.Error(err))
			}
		})
	}, nil
}
