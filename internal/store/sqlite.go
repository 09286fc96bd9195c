// ABOUTME: SQLite implementation of UsageStore using modernc.org/sqlite
// ABOUTME: Creates the schema on open; ":memory:" keeps the ledger in process memory

package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// MemoryPath selects an in-memory database.
const MemoryPath = ":memory:"

// SQLiteStore implements UsageStore using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) the ledger at path. Parent directories
// are created if needed.
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "store")

	if path == "" {
		path = MemoryPath
	}
	inMemory := path == MemoryPath

	if !inMemory {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if inMemory {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite usage ledger initialized", "path", path)
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS dispatch_usage (
			id              TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			model           TEXT NOT NULL,
			status          TEXT NOT NULL,
			prompt_tokens   INTEGER NOT NULL DEFAULT 0,
			response_tokens INTEGER NOT NULL DEFAULT 0,
			latency_ns      INTEGER NOT NULL DEFAULT 0,
			error           TEXT,
			created_at      TEXT NOT NULL,

			CHECK (status IN ('ok', 'provider_error', 'context_too_large'))
		);

		CREATE INDEX IF NOT EXISTS idx_dispatch_usage_model
			ON dispatch_usage(model, created_at);

		CREATE INDEX IF NOT EXISTS idx_dispatch_usage_conversation
			ON dispatch_usage(conversation_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
