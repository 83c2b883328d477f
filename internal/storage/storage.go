// Package storage persists documents, chunks, and the structured config/rule tables.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/hyperjump/kontext/internal/models"
)

// ErrNotFound is returned when a document or chunk does not exist.
var ErrNotFound = errors.New("not found")

// DocumentStore persists semantic-backend documents and their chunks.
type DocumentStore interface {
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error)
	DeleteDocument(ctx context.Context, id string) error

	BatchCreateChunks(ctx context.Context, chunks []*models.DocumentChunk) error
	GetChunk(ctx context.Context, id string) (*models.DocumentChunk, error)
	GetChunksByDocumentID(ctx context.Context, docID string) ([]*models.DocumentChunk, error)
	DeleteChunksByDocumentID(ctx context.Context, docID string) error

	CountDocuments(ctx context.Context) (int64, error)
	CountChunks(ctx context.Context) (int64, error)
}

// StructuredStore holds configuration entries and rules, searched by keyword.
type StructuredStore interface {
	PutConfig(ctx context.Context, entry models.ConfigEntry) error
	AddRule(ctx context.Context, rule *models.Rule) error
	SearchConfigs(ctx context.Context, keywords []string, limit int) ([]models.ConfigEntry, error)
	SearchRules(ctx context.Context, keywords []string, limit int) ([]models.Rule, error)
	Lookup(ctx context.Context, question string, limit int) ([]models.Record, error)
}

// Storage is the full SQLite-backed store.
type Storage interface {
	DocumentStore
	StructuredStore
	// LastModified reports the last write affecting backend.
	LastModified(ctx context.Context, backend models.Backend) (time.Time, error)
	Close() error
}
