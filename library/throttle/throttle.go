// Package throttle limits comment intake, in total and per key.
package throttle

import (
	"sync"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

const (
	defaultMaxKeys = 10000
	// idle per-key limiters are forgotten after this long
	keyIdleTTL = 10 * time.Minute
)

// Config configuration for Throttle
type Config struct {
	TotalNPerSec, TotalBurst     int
	EachKeyNPerSec, EachKeyBurst int
	// MaxKeys bounds how many per-key limiters are remembered
	MaxKeys int
}

// Throttle admits events while both the total and the per-key budget allow
type Throttle struct {
	sync.Mutex
	cfg   Config
	total *rate.Limiter
	keys  *expirable.LRU[string, *rate.Limiter]
}

// New create new Throttle
func New(cfg Config) (*Throttle, error) {
	if cfg.TotalNPerSec <= 0 || cfg.EachKeyNPerSec <= 0 {
		return nil, errors.New("NPerSec must bigger than 0")
	}
	if cfg.TotalBurst < cfg.TotalNPerSec || cfg.EachKeyBurst < cfg.EachKeyNPerSec {
		return nil, errors.New("burst must bigger than NPerSec")
	}
	if cfg.MaxKeys <= 0 {
		cfg.MaxKeys = defaultMaxKeys
	}

	return &Throttle{
		cfg:   cfg,
		total: rate.NewLimiter(rate.Limit(cfg.TotalNPerSec), cfg.TotalBurst),
		keys:  expirable.NewLRU[string, *rate.Limiter](cfg.MaxKeys, nil, keyIdleTTL),
	}, nil
}

// Allow reports whether one more event for key may pass.
// A denied key does not consume the total budget.
func (t *Throttle) Allow(key string) bool {
	t.Lock()
	limiter, ok := t.keys.Get(key)
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(t.cfg.EachKeyNPerSec), t.cfg.EachKeyBurst)
		t.keys.Add(key, limiter)
	}
	t.Unlock()

	return limiter.Allow() && t.total.Allow()
}
