package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hyperjump/kontext/internal/models"
)

// CreateDocument inserts a document.
func (s *SQLiteStorage) CreateDocument(ctx context.Context, doc *models.Document) error {
	metadataJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	now := s.now()
	doc.CreatedAt = now
	doc.UpdatedAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO documents (id, title, content, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Title, doc.Content, string(metadataJSON), doc.CreatedAt, doc.UpdatedAt,
	); err != nil {
		return err
	}
	if err := s.touch(ctx, tx, models.BackendSemantic); err != nil {
		return err
	}
	return tx.Commit()
}

// GetDocument returns a document by ID.
func (s *SQLiteStorage) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	var doc models.Document
	var metadataJSON string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, content, metadata, created_at, updated_at
		 FROM documents WHERE id = ?`, id,
	).Scan(&doc.ID, &doc.Title, &doc.Content, &metadataJSON, &doc.CreatedAt, &doc.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	if metadataJSON != "" && metadataJSON != "null" {
		if err := json.Unmarshal([]byte(metadataJSON), &doc.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return &doc, nil
}

// ListDocuments returns documents newest first.
func (s *SQLiteStorage) ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, content, created_at, updated_at
		 FROM documents ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		var doc models.Document
		if err := rows.Scan(&doc.ID, &doc.Title, &doc.Content, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return nil, err
		}
		docs = append(docs, &doc)
	}
	return docs, rows.Err()
}

// DeleteDocument removes a document and, through the foreign key, its chunks.
func (s *SQLiteStorage) DeleteDocument(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id); err != nil {
		return err
	}
	if err := s.touch(ctx, tx, models.BackendSemantic); err != nil {
		return err
	}
	return tx.Commit()
}

// BatchCreateChunks inserts multiple chunks in a transaction.
func (s *SQLiteStorage) BatchCreateChunks(ctx context.Context, chunks []*models.DocumentChunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO document_chunks (id, document_id, content, chunk_index, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := s.now()
	for _, chunk := range chunks {
		chunk.CreatedAt = now
		if _, err := stmt.ExecContext(ctx, chunk.ID, chunk.DocumentID, chunk.Content, chunk.ChunkIndex, chunk.CreatedAt); err != nil {
			return err
		}
	}
	if err := s.touch(ctx, tx, models.BackendSemantic); err != nil {
		return err
	}
	return tx.Commit()
}

// GetChunk returns a chunk by ID.
func (s *SQLiteStorage) GetChunk(ctx context.Context, id string) (*models.DocumentChunk, error) {
	var chunk models.DocumentChunk
	err := s.db.QueryRowContext(ctx,
		`SELECT id, document_id, content, chunk_index, created_at
		 FROM document_chunks WHERE id = ?`, id,
	).Scan(&chunk.ID, &chunk.DocumentID, &chunk.Content, &chunk.ChunkIndex, &chunk.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("chunk %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &chunk, nil
}

// GetChunksByDocumentID returns all chunks for a document ordered by chunk_index.
func (s *SQLiteStorage) GetChunksByDocumentID(ctx context.Context, docID string) ([]*models.DocumentChunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, content, chunk_index, created_at
		 FROM document_chunks WHERE document_id = ? ORDER BY chunk_index`,
		docID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []*models.DocumentChunk
	for rows.Next() {
		var chunk models.DocumentChunk
		if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Content, &chunk.ChunkIndex, &chunk.CreatedAt); err != nil {
			return nil, err
		}
		chunks = append(chunks, &chunk)
	}
	return chunks, rows.Err()
}

// DeleteChunksByDocumentID removes all chunks for a document.
func (s *SQLiteStorage) DeleteChunksByDocumentID(ctx context.Context, docID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = ?`, docID)
	return err
}

// CountDocuments returns the total number of documents.
func (s *SQLiteStorage) CountDocuments(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count)
	return count, err
}

// CountChunks returns the total number of chunks.
func (s *SQLiteStorage) CountChunks(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM document_chunks`).Scan(&count)
	return count, err
}
