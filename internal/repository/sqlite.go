package repository

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/openprocure/harrier/internal/domain"
	_ "modernc.org/sqlite"
)

// sqliteDSN layers the pragmas every connection needs: WAL so readers
// never block the ingest writers, a busy timeout to ride out lease
// contention, and foreign keys for the tenant cascade deletes.
func sqliteDSN(path string) string {
	return fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)", path)
}

// openSQLite opens the embedded database, creating the parent directory
// on first run. The modernc driver keeps the build CGO-free.
func openSQLite(cfg domain.RepositoryConfig) (*sql.DB, error) {
	path := cfg.SQLitePath
	if path == "" {
		path = "./harrier.db"
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}
	return db, nil
}
