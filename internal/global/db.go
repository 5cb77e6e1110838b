// Package global builds the moderation components from the shared settings.
package global

import (
	"context"

	"github.com/Laisky/errors/v2"
	gconfig "github.com/Laisky/go-config/v2"
	"github.com/Laisky/zap"
	"github.com/redis/go-redis/v9"

	"github.com/Laisky/laisky-blog-moderation/internal/moderation/store"
	"github.com/Laisky/laisky-blog-moderation/library/config"
	"github.com/Laisky/laisky-blog-moderation/library/db/mongo"
	"github.com/Laisky/laisky-blog-moderation/library/db/postgres"
	rlibs "github.com/Laisky/laisky-blog-moderation/library/db/redis"
	"github.com/Laisky/laisky-blog-moderation/library/db/sqlite"
	"github.com/Laisky/laisky-blog-moderation/library/log"
)

// Comment store backends, selected by settings.moderation.store.
const (
	BackendMemory   = "memory"
	BackendMongo    = "mongo"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"
)

// closer releases a connection on shutdown.
type closer func(ctx context.Context) error

// SetupStore connects the configured comment store.
func SetupStore(ctx context.Context) (store.CommentStore, closer, error) {
	backend := gconfig.Shared.GetString("settings.moderation.store")
	logger := log.Logger.Named("comment_store")
	noop := func(context.Context) error { return nil }

	switch backend {
	case "", BackendMemory:
		logger.Warn("comments are kept in memory and lost on exit")
		return store.NewMemory(nil), noop, nil
	case BackendMongo:
		db, err := mongo.NewDB(ctx, mongo.DialInfo{
			Addr:   gconfig.Shared.GetString("settings.db.mongo.addr"),
			DBName: gconfig.Shared.GetString("settings.db.mongo.db"),
			User:   gconfig.Shared.GetString("settings.db.mongo.user"),
			Pwd:    gconfig.Shared.GetString("settings.db.mongo.pwd"),
			AuthDB: gconfig.Shared.GetString("settings.db.mongo.auth_db"),
		})
		if err != nil {
			return nil, nil, errors.Wrap(err, "connect to mongo")
		}

		st, err := store.NewMongo(ctx, db, logger, nil)
		if err != nil {
			_ = db.Close(ctx)
			return nil, nil, err
		}
		logger.Info("connected mongodb")
		return st, db.Close, nil
	case BackendPostgres:
		sqlDB, err := postgres.NewDB(ctx, postgres.DialInfo{
			Addr:   gconfig.Shared.GetString("settings.db.postgres.addr"),
			Port:   gconfig.Shared.GetInt("settings.db.postgres.port"),
			DBName: gconfig.Shared.GetString("settings.db.postgres.db"),
			User:   gconfig.Shared.GetString("settings.db.postgres.user"),
			Pwd:    gconfig.Shared.GetString("settings.db.postgres.pwd"),
		})
		if err != nil {
			return nil, nil, errors.Wrap(err, "connect to postgres")
		}
		closeFn := func(context.Context) error { return sqlDB.Close() }

		gdb, err := postgres.OpenGorm(sqlDB)
		if err != nil {
			_ = sqlDB.Close()
			return nil, nil, err
		}
		st, err := store.NewGorm(gdb, logger, nil)
		if err != nil {
			_ = sqlDB.Close()
			return nil, nil, err
		}
		logger.Info("connected postgres")
		return st, closeFn, nil
	case BackendSQLite:
		path := config.ResolvePath(gconfig.Shared.GetString("settings.db.sqlite.path"))
		gdb, err := sqlite.Open(path)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func(context.Context) error {
			sqlDB, err := gdb.DB()
			if err != nil {
				return errors.Wrap(err, "get sqlite handle")
			}
			return sqlDB.Close()
		}

		st, err := store.NewGorm(gdb, logger, nil)
		if err != nil {
			_ = closeFn(ctx)
			return nil, nil, err
		}
		logger.Info("opened sqlite", zap.String("path", path))
		return st, closeFn, nil
	default:
		return nil, nil, errors.Errorf("unknown comment store %q", backend)
	}
}

// RedisConfigured reports whether settings.db.redis.addr is set.
func RedisConfigured() bool {
	return gconfig.Shared.GetString("settings.db.redis.addr") != ""
}

// SetupRedis connects to settings.db.redis.
func SetupRedis(ctx context.Context) (*rlibs.DB, error) {
	db := rlibs.NewDB(&redis.Options{
		Addr:     gconfig.Shared.GetString("settings.db.redis.addr"),
		Password: gconfig.Shared.GetString("settings.db.redis.pwd"),
		DB:       gconfig.Shared.GetInt("settings.db.redis.db"),
	})
	if err := db.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	log.Logger.Info("connected redis", zap.String("addr", gconfig.Shared.GetString("settings.db.redis.addr")))
	return db, nil
}
