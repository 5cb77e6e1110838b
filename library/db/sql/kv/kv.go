// Package kv is an expiring key-value table kept in the comment database,
// for SQL deployments that run without redis.
package kv

import (
	"context"
	"regexp"
	"time"

	errors "github.com/Laisky/errors/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MaxTTL bounds how long an item may live.
const MaxTTL = 30 * 24 * time.Hour

var (
	_ Interface = new(Kv)

	regexpKey       = regexp.MustCompile(`^[a-zA-Z0-9_:/\-]{1,160}$`)
	regexpTableName = regexp.MustCompile(`^[a-zA-Z0-9_]{1,64}$`)

	// ErrKeyNotFound is returned by Get for keys never set or deleted
	ErrKeyNotFound = errors.New("key not found")
	// ErrKeyExpired is returned by Get for keys past their expiry
	ErrKeyExpired = errors.New("key expired")
)

// Item is a kv row
type Item struct {
	Key       string    `gorm:"column:key;type:varchar(160);primaryKey" json:"key"`
	Value     string    `gorm:"column:value;type:text;not null" json:"value"`
	CreatedAt time.Time `gorm:"column:created_at;not null" json:"created_at"`
	ExpireAt  time.Time `gorm:"column:expire_at;not null;index" json:"expire_at"`
}

// Interface is a kv interface
type Interface interface {
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error
	SetWithExpireAt(ctx context.Context, key, value string, expireAt time.Time) error
	Get(ctx context.Context, key string) (*Item, error)
	Exists(ctx context.Context, key string) (bool, error)
	Del(ctx context.Context, key string) error
	Purge(ctx context.Context) (int64, error)
}

// Kv is a key-value store on postgres or sqlite
type Kv struct {
	opt *option
	db  *gorm.DB
}

type option struct {
	tableName string
	clock     func() time.Time
}

// Option is a function that configures the kv
type Option func(*option) error

func applyOpts(opts ...Option) (*option, error) {
	// fill default
	o := &option{
		tableName: "moderation_kv",
		clock:     func() time.Time { return time.Now().UTC() },
	}

	// apply opts
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, errors.WithStack(err)
		}
	}

	return o, nil
}

// WithTableName is a option to set table name
func WithTableName(tableName string) Option {
	return func(o *option) error {
		if !regexpTableName.MatchString(tableName) {
			return errors.Errorf("invalid table name: %s", tableName)
		}
		o.tableName = tableName
		return nil
	}
}

// WithClock is a option to replace the time source
func WithClock(clock func() time.Time) Option {
	return func(o *option) error {
		if clock == nil {
			return errors.New("clock cannot be nil")
		}
		o.clock = clock
		return nil
	}
}

// NewKv create a new kv, creating its table if needed
func NewKv(db *gorm.DB, opts ...Option) (*Kv, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}

	opt, err := applyOpts(opts...)
	if err != nil {
		return nil, errors.Wrap(err, "apply opts")
	}

	kv := &Kv{
		opt: opt,
		db:  db,
	}

	if err := kv.table(context.Background()).AutoMigrate(&Item{}); err != nil {
		return nil, errors.Wrap(err, "create kv table")
	}

	return kv, nil
}

func (kv *Kv) table(ctx context.Context) *gorm.DB {
	return kv.db.WithContext(ctx).Table(kv.opt.tableName)
}

func (kv *Kv) validKey(key string) error {
	if !regexpKey.MatchString(key) {
		return errors.Errorf("invalid key: %s", key)
	}

	return nil
}

// SetWithTTL stores the key-value pair with a time-to-live duration.
func (kv *Kv) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.Errorf("ttl must be greater than 0: %s", ttl)
	}
	if ttl > MaxTTL {
		return errors.Errorf("ttl is too far in the future: %s", ttl)
	}

	return kv.SetWithExpireAt(ctx, key, value, kv.opt.clock().Add(ttl))
}

// SetWithExpireAt stores the key-value pair with a specific expiration time.
func (kv *Kv) SetWithExpireAt(ctx context.Context, key, value string, expireAt time.Time) error {
	if err := kv.validKey(key); err != nil {
		return errors.WithStack(err)
	}

	now := kv.opt.clock()
	if expireAt.Before(now) {
		return errors.Errorf("expire time is in the past: %s", expireAt)
	}
	if expireAt.After(now.Add(MaxTTL)) {
		return errors.Errorf("expire time is too far in the future: %s", expireAt)
	}

	item := &Item{Key: key, Value: value, CreatedAt: now, ExpireAt: expireAt.UTC()}
	if err := kv.table(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "expire_at"}),
		}).
		Create(item).Error; err != nil {
		return errors.Wrap(err, "upsert kv item")
	}

	return nil
}

// Get retrieves the key's item. If the key is expired,
// it deletes the record and returns ErrKeyExpired.
func (kv *Kv) Get(ctx context.Context, key string) (*Item, error) {
	item := new(Item)
	err := kv.table(ctx).Where(clause.Eq{Column: clause.Column{Name: "key"}, Value: key}).Take(item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrapf(ErrKeyNotFound, "key %s", key)
		}
		return nil, errors.Wrap(err, "failed to get key")
	}

	if kv.opt.clock().After(item.ExpireAt) {
		_ = kv.Del(ctx, key)
		return nil, errors.Wrapf(ErrKeyExpired, "key %s", key)
	}
	return item, nil
}

// Exists checks whether a key exists and hasn't expired.
func (kv *Kv) Exists(ctx context.Context, key string) (bool, error) {
	if _, err := kv.Get(ctx, key); err != nil {
		if errors.Is(err, ErrKeyNotFound) || errors.Is(err, ErrKeyExpired) {
			return false, nil
		}
		return false, errors.Wrap(err, "failed to check existence")
	}

	return true, nil
}

// Del removes the key from the store.
func (kv *Kv) Del(ctx context.Context, key string) error {
	if err := kv.table(ctx).
		Where(clause.Eq{Column: clause.Column{Name: "key"}, Value: key}).
		Delete(&Item{}).Error; err != nil {
		return errors.Wrap(err, "failed to delete key")
	}
	return nil
}

// Purge deletes every expired item and reports how many were removed.
func (kv *Kv) Purge(ctx context.Context) (int64, error) {
	result := kv.table(ctx).
		Where(clause.Lt{Column: clause.Column{Name: "expire_at"}, Value: kv.opt.clock()}).
		Delete(&Item{})
	if result.Error != nil {
		return 0, errors.Wrap(result.Error, "purge expired keys")
	}
	return result.RowsAffected, nil
}

// PurgeEvery runs Purge every interval until ctx is done.
// report, if not nil, receives the result of each run.
func (kv *Kv) PurgeEvery(ctx context.Context, interval time.Duration, report func(n int64, err error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		n, err := kv.Purge(ctx)
		if report != nil && ctx.Err() == nil {
			report(n, err)
		}
	}
}
