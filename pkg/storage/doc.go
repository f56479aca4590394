// Package storage provides storage implementations for job persistence.
//
// This package includes:
//   - GormStorage: a GORM-based implementation of core.Storage supporting
//     PostgreSQL and SQLite
//   - Open: DSN-driven database connection with pool configuration
//
// The Storage interface is defined in pkg/core and must be implemented
// by any custom storage backend.
package storage
