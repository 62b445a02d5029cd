// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Grimoire Contributors

package sqlite

import (
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/grimoire-dev/grimoire/internal/store"
	grimerr "github.com/grimoire-dev/grimoire/pkg/errors"
)

func init() {
	sqlite_vec.Auto()
}

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Compile-time interface checks.
var (
	_ store.ToolRegistry = (*Store)(nil)
	_ store.VectorStore  = (*Store)(nil)
)

// Store is the SQLite implementation of the tool registry and the per-tool
// vector store. One database file holds the tools catalog plus a
// documents_<id>/vectors_<id> table pair per registered tool.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	mu    sync.Mutex
	locks map[int64]*sync.RWMutex
}

// Open opens (or creates) the database at dbPath, enables WAL and foreign
// keys, and applies catalog migrations. Missing parent directories are
// created.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, grimerr.Errorf(grimerr.CodeStoreDatabaseFailure, "creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, grimerr.Errorf(grimerr.CodeStoreDatabaseFailure, "opening sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, grimerr.Errorf(grimerr.CodeStoreDatabaseFailure, "pinging sqlite db: %w", err)
	}

	if err := migrateCatalog(db); err != nil {
		_ = db.Close()
		return nil, grimerr.Errorf(grimerr.CodeStoreDatabaseFailure, "migrating catalog: %w", err)
	}

	return &Store{
		db:     db,
		logger: slog.Default(),
		locks:  make(map[int64]*sync.RWMutex),
	}, nil
}

func migrateCatalog(db *sql.DB) error {
	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.Up(db, "migrations")
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// toolLock returns the RWMutex guarding one tool's tables. Ingestion writes
// take the write side; queries take the read side, so a query never observes
// a half-swapped document.
func (s *Store) toolLock(toolID int64) *sync.RWMutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[toolID]
	if !ok {
		l = &sync.RWMutex{}
		s.locks[toolID] = l
	}
	return l
}

// Table names derive from the integer tool id, never from user input.
func documentsTable(toolID int64) string {
	return fmt.Sprintf("documents_%d", toolID)
}

func vectorsTable(toolID int64) string {
	return fmt.Sprintf("vectors_%d", toolID)
}

// formatTime serialises a time for storage as TEXT.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime deserialises a time string stored in the database.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
