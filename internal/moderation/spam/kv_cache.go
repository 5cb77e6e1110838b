package spam

import (
	"context"
	"strconv"
	"time"

	"github.com/Laisky/errors/v2"

	"github.com/Laisky/laisky-blog-moderation/library/db/sql/kv"
)

// KVVerdictCache keeps verdicts in the SQL database next to the comments,
// so SQL deployments without redis survive restarts without a second classifier call.
type KVVerdictCache struct {
	kv  kv.Interface
	ttl time.Duration
}

// NewKVVerdictCache creates a kv-backed verdict cache. ttl is capped at kv.MaxTTL.
func NewKVVerdictCache(store kv.Interface, ttl time.Duration) *KVVerdictCache {
	if ttl > kv.MaxTTL {
		ttl = kv.MaxTTL
	}

	return &KVVerdictCache{kv: store, ttl: ttl}
}

// Get implements VerdictCache.
func (c *KVVerdictCache) Get(ctx context.Context, key string) (int, bool, error) {
	item, err := c.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, kv.ErrKeyNotFound) || errors.Is(err, kv.ErrKeyExpired) {
			return 0, false, nil
		}
		return 0, false, errors.Wrap(err, "get verdict")
	}

	score, err := strconv.Atoi(item.Value)
	if err != nil {
		return 0, false, errors.Wrapf(err, "corrupt verdict %q", item.Value)
	}

	return score, true, nil
}

// Set implements VerdictCache.
func (c *KVVerdictCache) Set(ctx context.Context, key string, score int) error {
	if err := c.kv.SetWithTTL(ctx, key, strconv.Itoa(score), c.ttl); err != nil {
		return errors.Wrap(err, "set verdict")
	}

	return nil
}
