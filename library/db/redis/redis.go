// Package redis wraps the redis client shared by the task queue, locks and caches.
package redis

import (
	"context"

	"github.com/Laisky/errors/v2"
	"github.com/redis/go-redis/v9"
)

// DB is a wrapper for go-redis
type DB struct {
	rdb *redis.Client
}

// NewDB creates a new DB instance
func NewDB(opt *redis.Options) *DB {
	return NewDBFromClient(redis.NewClient(opt))
}

// NewDBFromClient wraps an existing client
func NewDBFromClient(rdb *redis.Client) *DB {
	return &DB{rdb: rdb}
}

// Client returns the underlying go-redis client
func (db *DB) Client() *redis.Client {
	return db.rdb
}

// Ping checks connectivity
func (db *DB) Ping(ctx context.Context) error {
	if err := db.rdb.Ping(ctx).Err(); err != nil {
		return errors.Wrap(err, "ping redis")
	}

	return nil
}

// Close closes the client
func (db *DB) Close() error {
	return db.rdb.Close()
}
