// Package storage implements the embedded relational store: a single SQLite
// connection, forward-only SQL migrations, and the FTS5 virtual index that
// backs the query engine.
//
// Grounded on nico-hyperjump-sagasu/internal/storage/sqlite.go for the
// connection-setup shape (WAL, parent-dir creation) and on
// original_source/src/multicorpus_engine/db/migrations.py for the
// forward-only migration runner semantics.
package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var migrationNameRE = regexp.MustCompile(`^(\d+)_`)

// Store wraps the single SQL connection used by the whole process. Every
// operation that touches the DB is serialized by mu, matching the
// single-writer-lock concurrency model of spec.md §5: the connection is not
// safe for unsynchronized concurrent use by application convention, even
// though database/sql itself would tolerate it.
type Store struct {
	db   *sql.DB
	mu   sync.Mutex
	Path string
}

// Open opens or creates the SQLite database at path, enables WAL, restricts
// the connection pool to one connection (so the writer lock genuinely
// guards the only connection in play), and applies any pending migrations.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &Store{db: db, Path: path}
	if _, err := s.ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	return s, nil
}

// ApplyMigrations applies every pending embedded migration in version order
// and returns the number applied. Migrating an already-migrated DB applies 0.
func (s *Store) ApplyMigrations() (int, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return 0, err
	}
	type migration struct {
		version int
		name    string
	}
	var migrations []migration
	for _, e := range entries {
		m := migrationNameRE.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		v, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		migrations = append(migrations, migration{version: v, name: e.Name()})
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].version < migrations[j].version })

	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL)`); err != nil {
		return 0, err
	}

	applied := map[int]bool{}
	rows, err := s.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return 0, err
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return 0, err
		}
		applied[v] = true
	}
	rows.Close()

	count := 0
	for _, m := range migrations {
		if applied[m.version] {
			continue
		}
		sqlBytes, err := migrationsFS.ReadFile("migrations/" + m.name)
		if err != nil {
			return count, err
		}
		tx, err := s.db.Begin()
		if err != nil {
			return count, err
		}
		if _, err := tx.Exec(string(sqlBytes)); err != nil {
			tx.Rollback()
			return count, fmt.Errorf("migration %s: %w", m.name, err)
		}
		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, applied_at) VALUES (?, datetime('now'))",
			m.version,
		); err != nil {
			tx.Rollback()
			return count, err
		}
		if err := tx.Commit(); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// WithTx acquires the process-wide writer lock, runs fn inside a transaction,
// and commits (or rolls back on error) before releasing the lock. This is the
// single access point every domain package uses to touch the DB, so reads and
// writes alike are serialized per spec.md §5.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
