// Package lock provides per-comment mutual exclusion for moderation workers.
package lock

import (
	"context"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

// Locker serializes work on a single comment.
type Locker interface {
	// Lock blocks until the key is held or ctx is done. unlock must be called exactly once.
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

type keyedEntry struct {
	// sem is a one-slot semaphore, so waiters can give up on ctx
	sem  chan struct{}
	refs int
}

// Keyed is an in-process Locker. Entries are dropped once nobody holds or waits for them.
type Keyed struct {
	entries *xsync.MapOf[string, *keyedEntry]
}

// NewKeyed creates an in-process keyed lock.
func NewKeyed() *Keyed {
	return &Keyed{entries: xsync.NewMapOf[string, *keyedEntry]()}
}

func (k *Keyed) acquireRef(key string) *keyedEntry {
	entry, _ := k.entries.Compute(key, func(old *keyedEntry, loaded bool) (*keyedEntry, bool) {
		if !loaded {
			old = &keyedEntry{sem: make(chan struct{}, 1)}
		}
		old.refs++
		return old, false
	})
	return entry
}

func (k *Keyed) releaseRef(key string) {
	k.entries.Compute(key, func(old *keyedEntry, loaded bool) (*keyedEntry, bool) {
		if !loaded {
			return nil, true
		}
		old.refs--
		return old, old.refs == 0
	})
}

// Lock implements Locker.
func (k *Keyed) Lock(ctx context.Context, key string) (func(), error) {
	entry := k.acquireRef(key)

	select {
	case entry.sem <- struct{}{}:
	case <-ctx.Done():
		k.releaseRef(key)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-entry.sem
			k.releaseRef(key)
		})
	}, nil
}

// Len returns the number of keys currently held or waited on.
func (k *Keyed) Len() int {
	return k.entries.Size()
}
