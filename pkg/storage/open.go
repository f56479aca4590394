package storage

import (
	"fmt"
	"log/slog"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Dialect returns the GORM dialect name for a DSN: "postgres" for
// postgres:// URLs and key=value DSNs, "sqlite" otherwise.
func Dialect(dsn string) string {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return "postgres"
	case strings.Contains(dsn, "host=") && strings.Contains(dsn, "dbname="):
		return "postgres"
	}
	return "sqlite"
}

// Open connects to the database named by dsn and configures its pool.
// SQLite databases are limited to a single open connection.
func Open(dsn string, opts ...PoolOption) (*gorm.DB, error) {
	var dialector gorm.Dialector
	dialect := Dialect(dsn)
	if dialect == "postgres" {
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect, err)
	}

	if dialect == "sqlite" {
		opts = append(opts, MaxOpenConns(1), MaxIdleConns(1))
	}
	if err := ConfigurePool(db, opts...); err != nil {
		return nil, err
	}

	slog.Debug("database opened", "dialect", dialect)
	return db, nil
}
