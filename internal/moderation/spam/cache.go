package spam

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	"github.com/go-redis/cache/v9"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"

	"github.com/Laisky/laisky-blog-moderation/internal/moderation/model"
	rlibs "github.com/Laisky/laisky-blog-moderation/library/db/redis"
	"github.com/Laisky/laisky-blog-moderation/library/log"
)

// VerdictCache remembers scores by key. Get reports ok=false on a miss.
type VerdictCache interface {
	Get(ctx context.Context, key string) (score int, ok bool, err error)
	Set(ctx context.Context, key string, score int) error
}

// verdictKey changes whenever anything sent to the classifier changes.
func verdictKey(c *model.Comment, authorCtx model.AuthorContext) string {
	h := sha256.New()
	for _, part := range []string{
		c.Author, c.Email, c.Text,
		authorCtx.UserIP, authorCtx.UserAgent, authorCtx.Referrer, authorCtx.Permalink,
	} {
		h.Write([]byte(strconv.Itoa(len(part))))
		h.Write([]byte{':'})
		h.Write([]byte(part))
	}

	return c.ID + "/" + hex.EncodeToString(h.Sum(nil))
}

// Cached wraps a Classifier so a redelivered task does not pay for a second call.
// Cache failures are logged and fall through to the classifier.
type Cached struct {
	next   Classifier
	cache  VerdictCache
	logger logSDK.Logger
}

// NewCached wraps next with cache.
func NewCached(next Classifier, cache VerdictCache, logger logSDK.Logger) *Cached {
	if logger == nil {
		logger = log.Logger.Named("spam_cache")
	}

	return &Cached{next: next, cache: cache, logger: logger}
}

// Score implements Classifier.
func (c *Cached) Score(ctx context.Context, comment *model.Comment, authorCtx model.AuthorContext) (int, error) {
	key := verdictKey(comment, authorCtx)

	score, ok, err := c.cache.Get(ctx, key)
	switch {
	case err != nil:
		c.logger.Warn("read verdict cache", zap.String("comment_id", comment.ID), zap.Error(err))
	case ok:
		return score, nil
	}

	if score, err = c.next.Score(ctx, comment, authorCtx); err != nil {
		return 0, err
	}

	if err = c.cache.Set(ctx, key, score); err != nil {
		c.logger.Warn("write verdict cache", zap.String("comment_id", comment.ID), zap.Error(err))
	}

	return score, nil
}

// LRUVerdictCache is a process-local VerdictCache.
type LRUVerdictCache struct {
	data *expirable.LRU[string, int]
}

// NewLRUVerdictCache creates a cache holding up to capacity entries for ttl.
func NewLRUVerdictCache(capacity int, ttl time.Duration) *LRUVerdictCache {
	return &LRUVerdictCache{
		data: expirable.NewLRU[string, int](capacity, nil, ttl),
	}
}

// Get implements VerdictCache.
func (l *LRUVerdictCache) Get(_ context.Context, key string) (int, bool, error) {
	score, ok := l.data.Get(key)
	return score, ok, nil
}

// Set implements VerdictCache.
func (l *LRUVerdictCache) Set(_ context.Context, key string, score int) error {
	l.data.Add(key, score)
	return nil
}

// RedisVerdictCache shares verdicts between worker processes,
// with a small local TinyLFU in front of redis.
type RedisVerdictCache struct {
	data *cache.Cache
	ttl  time.Duration
}

// NewRedisVerdictCache creates a redis-backed verdict cache.
func NewRedisVerdictCache(rdb *redis.Client, ttl time.Duration) *RedisVerdictCache {
	return &RedisVerdictCache{
		data: cache.New(&cache.Options{
			Redis:      rdb,
			LocalCache: cache.NewTinyLFU(1_000, time.Minute),
		}),
		ttl: ttl,
	}
}

// Get implements VerdictCache.
func (r *RedisVerdictCache) Get(ctx context.Context, key string) (int, bool, error) {
	var score int
	if err := r.data.Get(ctx, rlibs.KeyPrefixSpamVerdict+key, &score); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return 0, false, nil
		}
		return 0, false, errors.Wrap(err, "get verdict")
	}

	return score, true, nil
}

// Set implements VerdictCache.
func (r *RedisVerdictCache) Set(ctx context.Context, key string, score int) error {
	if err := r.data.Set(&cache.Item{
		Ctx:   ctx,
		Key:   rlibs.KeyPrefixSpamVerdict + key,
		Value: score,
		TTL:   r.ttl,
	}); err != nil {
		return errors.Wrap(err, "set verdict")
	}

	return nil
}
