// Package sqlite opens single-node sqlite databases for the SQL comment store.
package sqlite

import (
	errors "github.com/Laisky/errors/v2"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/Laisky/laisky-blog-moderation/library/db/postgres"
)

// Open opens (or creates) the sqlite database at path.
// WAL mode and a busy timeout let several worker goroutines share the file.
func Open(path string) (*gorm.DB, error) {
	dsn := "file:" + path + "?_journal_mode=WAL&_busy_timeout=5000"
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: postgres.NewRedactingLogger(gormLogger.Default.LogMode(gormLogger.Warn)),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "open sqlite %q", path)
	}

	return gdb, nil
}
