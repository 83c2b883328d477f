package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/kontext/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db  *sql.DB
	now func() time.Time
}

var _ Storage = (*SQLiteStorage)(nil)

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db, now: time.Now}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS config (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT 'general'
	);

	CREATE TABLE IF NOT EXISTS rules (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		condition TEXT NOT NULL DEFAULT '',
		action TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT 'general'
	);

	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		title TEXT,
		content TEXT NOT NULL,
		metadata TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS document_chunks (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		content TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_document_chunk ON document_chunks(document_id, chunk_index);

	CREATE TABLE IF NOT EXISTS store_meta (
		backend TEXT PRIMARY KEY,
		updated_at INTEGER NOT NULL
	);
	`
	_, err := db.Exec(schema)
	return err
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// touch records a write to backend.
func (s *SQLiteStorage) touch(ctx context.Context, ex execer, backend models.Backend) error {
	_, err := ex.ExecContext(ctx,
		`INSERT INTO store_meta (backend, updated_at) VALUES (?, ?)
		 ON CONFLICT(backend) DO UPDATE SET updated_at = excluded.updated_at`,
		string(backend), s.now().UnixNano(),
	)
	return err
}

// LastModified returns the time of the last write affecting backend, or the zero time if
// there has been none.
func (s *SQLiteStorage) LastModified(ctx context.Context, backend models.Backend) (time.Time, error) {
	var ns int64
	err := s.db.QueryRowContext(ctx,
		`SELECT updated_at FROM store_meta WHERE backend = ?`, string(backend),
	).Scan(&ns)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, ns), nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
