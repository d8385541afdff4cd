// Package sqlite implements the repository interfaces on SQLite.
//
// modernc.org/sqlite is a pure Go driver, so the binary still cross-compiles
// without a C toolchain. Use ":memory:" as the path in tests.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and implements the repository interfaces.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the database at dbPath and runs migrations.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// An in-memory database lives and dies with one connection; a pool
	// would hand later queries a fresh, empty database.
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets the history page read while a publish is being recorded.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the schema. Every statement is idempotent.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS operators (
			id            TEXT PRIMARY KEY,
			github_id     INTEGER NOT NULL UNIQUE,
			login         TEXT NOT NULL,
			avatar_url    TEXT NOT NULL DEFAULT '',
			created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			last_login_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_operators_login ON operators(login COLLATE NOCASE);
	`)
	if err != nil {
		return fmt.Errorf("creating operators table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS publications (
			id          TEXT PRIMARY KEY,
			number      INTEGER NOT NULL,
			url         TEXT NOT NULL,
			title       TEXT NOT NULL,
			category    TEXT NOT NULL,
			branch      TEXT NOT NULL UNIQUE,
			base_branch TEXT NOT NULL,
			commit_sha  TEXT NOT NULL,
			file_count  INTEGER NOT NULL,
			operator    TEXT NOT NULL DEFAULT '',
			created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_publications_created_at ON publications(created_at);
	`)
	if err != nil {
		return fmt.Errorf("creating publications table: %w", err)
	}

	return nil
}

// Ping checks that the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}
