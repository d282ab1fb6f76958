package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

type migration struct {
	name string
	run  func(tx *sql.Tx) error
}

var migrations = []migration{
	{name: "0001_initial_schema", run: migrateInitialSchema},
	{name: "0002_page_cache", run: migratePageCache},
}

// OpenDB opens (creating if absent) the cache database at path. When the
// existing file cannot be opened or migrated it is moved aside and a fresh
// database is created: losing incremental state only causes duplicate
// emission, while aborting the run is not recoverable. The returned error
// in that case wraps ErrCacheCorrupt and the returned handle is still
// usable.
func OpenDB(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := openAndMigrate(path)
	if err == nil {
		return db, nil
	}

	backup := path + ".corrupt"
	_ = os.Remove(backup)
	if renameErr := os.Rename(path, backup); renameErr != nil {
		return nil, fmt.Errorf("%w: %v (and failed to move aside: %v)", ErrCacheCorrupt, err, renameErr)
	}
	db, retryErr := openAndMigrate(path)
	if retryErr != nil {
		return nil, fmt.Errorf("%w: %v (recreate failed: %v)", ErrCacheCorrupt, err, retryErr)
	}
	return db, fmt.Errorf("%w: %v (recreated empty, previous file moved to %s)", ErrCacheCorrupt, err, backup)
}

func openAndMigrate(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// SQLite allows one writer at a time; serialize connections to avoid
	// busy/locked storms.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		`PRAGMA foreign_keys = ON;`,
		`PRAGMA busy_timeout = 5000;`,
		`PRAGMA journal_mode = WAL;`,
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func runMigrations(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name TEXT PRIMARY KEY,
			applied_at DATETIME NOT NULL
		);
	`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	applied, err := appliedMigrations(db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if _, ok := applied[m.name]; ok {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", m.name, err)
		}

		if err := m.run(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("run migration %s: %w", m.name, err)
		}

		if _, err := tx.Exec(
			`INSERT INTO schema_migrations(name, applied_at) VALUES (?, ?)`,
			m.name,
			time.Now().UTC().Format(time.RFC3339Nano),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", m.name, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", m.name, err)
		}
	}

	return nil
}

func appliedMigrations(db *sql.DB) (map[string]struct{}, error) {
	rows, err := db.Query(`SELECT name FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("query schema_migrations: %w", err)
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan schema_migrations: %w", err)
		}
		out[name] = struct{}{}
	}
	return out, rows.Err()
}

func migrateInitialSchema(tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sources (
			url TEXT PRIMARY KEY,
			etag TEXT,
			last_modified TEXT,
			last_fetched_at DATETIME,
			fail_count INTEGER NOT NULL DEFAULT 0,
			last_error TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS entries (
			source_url TEXT NOT NULL,
			entry_id TEXT NOT NULL,
			content_hash TEXT NOT NULL,
			published_at DATETIME,
			first_seen_at DATETIME NOT NULL,
			last_seen_at DATETIME NOT NULL,
			PRIMARY KEY (source_url, entry_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_entries_last_seen ON entries(last_seen_at);`,
		`CREATE INDEX IF NOT EXISTS idx_sources_fetched ON sources(last_fetched_at);`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func migratePageCache(tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS pages (
			url TEXT PRIMARY KEY,
			body BLOB,
			fetched_at DATETIME NOT NULL,
			ok INTEGER NOT NULL DEFAULT 1,
			error TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_pages_fetched ON pages(fetched_at);`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
