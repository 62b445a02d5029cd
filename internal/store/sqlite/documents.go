// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Grimoire Contributors

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"

	"github.com/grimoire-dev/grimoire/internal/store"
	grimerr "github.com/grimoire-dev/grimoire/pkg/errors"
)

// DocumentHashes returns file path → content hash for every stored document
// of the tool.
func (s *Store) DocumentHashes(ctx context.Context, toolID int64) (map[string]string, error) {
	lock := s.toolLock(toolID)
	lock.RLock()
	defer lock.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT file_path, content_hash FROM `+documentsTable(toolID)+` WHERE tool_id = ?`, toolID)
	if err != nil {
		return nil, grimerr.Errorf(grimerr.CodeStoreDatabaseFailure, "listing document hashes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	hashes := make(map[string]string)
	for rows.Next() {
		var path, hash string
		if err := rows.Scan(&path, &hash); err != nil {
			return nil, grimerr.Errorf(grimerr.CodeStoreDatabaseFailure, "scanning document hash row: %w", err)
		}
		hashes[path] = hash
	}
	if err := rows.Err(); err != nil {
		return nil, grimerr.Errorf(grimerr.CodeStoreDatabaseFailure, "iterating document hash rows: %w", err)
	}

	return hashes, nil
}

// CountDocuments reports how many documents the tool currently stores.
func (s *Store) CountDocuments(ctx context.Context, toolID int64) (int, error) {
	lock := s.toolLock(toolID)
	lock.RLock()
	defer lock.RUnlock()

	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM `+documentsTable(toolID)+` WHERE tool_id = ?`, toolID).Scan(&n)
	if err != nil {
		return 0, grimerr.Errorf(grimerr.CodeStoreDatabaseFailure, "counting documents: %w", err)
	}
	return n, nil
}

// ReplaceDocument swaps the stored rows for doc.FilePath in one transaction:
// delete the old document row (chunks cascade), insert the new document and
// its chunks. Callers embed outside this call; only the swap holds the
// tool's write lock.
func (s *Store) ReplaceDocument(ctx context.Context, toolID int64, doc *store.Document, chunks []store.ChunkRecord, embeddings [][]float32) error {
	if len(chunks) != len(embeddings) {
		return grimerr.Errorf(grimerr.CodeStoreChunkCountMismatch,
			"chunk/embedding count mismatch: %d chunks, %d embeddings", len(chunks), len(embeddings))
	}

	blobs := make([][]byte, len(embeddings))
	for i, emb := range embeddings {
		blob, err := sqlite_vec.SerializeFloat32(emb)
		if err != nil {
			return grimerr.Errorf(grimerr.CodeStoreDatabaseFailure, "serializing embedding %d: %w", i, err)
		}
		blobs[i] = blob
	}

	lock := s.toolLock(toolID)
	lock.Lock()
	defer lock.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return grimerr.Errorf(grimerr.CodeStoreDatabaseFailure, "beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if len(blobs) > 0 {
		if err := checkDimensions(ctx, tx, toolID, len(blobs[0])); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM `+documentsTable(toolID)+` WHERE tool_id = ? AND file_path = ?`,
		toolID, doc.FilePath); err != nil {
		return grimerr.Errorf(grimerr.CodeStoreDatabaseFailure, "deleting old document %s: %w", doc.FilePath, err)
	}

	now := formatTime(time.Now())
	res, err := tx.ExecContext(ctx,
		`INSERT INTO `+documentsTable(toolID)+` (tool_id, file_path, content_hash, content, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)`,
		toolID, doc.FilePath, doc.ContentHash, doc.Content, now, now)
	if err != nil {
		return grimerr.Errorf(grimerr.CodeStoreDatabaseFailure, "inserting document %s: %w", doc.FilePath, err)
	}

	docID, err := res.LastInsertId()
	if err != nil {
		return grimerr.Errorf(grimerr.CodeStoreDatabaseFailure, "reading document id: %w", err)
	}

	insChunk := `INSERT INTO ` + vectorsTable(toolID) + ` (tool_id, document_id, chunk_text, start_position, end_position, embedding, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	for i, chunk := range chunks {
		if _, err := tx.ExecContext(ctx, insChunk,
			toolID, docID, chunk.Text, chunk.StartChar, chunk.EndChar, blobs[i], now); err != nil {
			return grimerr.Errorf(grimerr.CodeStoreDatabaseFailure, "inserting chunk %d of %s: %w", i, doc.FilePath, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return grimerr.Errorf(grimerr.CodeStoreDatabaseFailure, "committing document replace: %w", err)
	}

	doc.ID = docID
	doc.ToolID = toolID
	return nil
}

// DeleteDocument removes one document and its chunks. Deleting a path with
// no stored row is a no-op.
func (s *Store) DeleteDocument(ctx context.Context, toolID int64, filePath string) error {
	lock := s.toolLock(toolID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM `+documentsTable(toolID)+` WHERE tool_id = ? AND file_path = ?`,
		toolID, filePath); err != nil {
		return grimerr.Errorf(grimerr.CodeStoreDatabaseFailure, "deleting document %s: %w", filePath, err)
	}
	return nil
}

// DeleteAllDocuments purges every document and chunk for the tool.
func (s *Store) DeleteAllDocuments(ctx context.Context, toolID int64) error {
	lock := s.toolLock(toolID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM `+documentsTable(toolID)+` WHERE tool_id = ?`, toolID); err != nil {
		return grimerr.Errorf(grimerr.CodeStoreDatabaseFailure, "purging documents: %w", err)
	}
	return nil
}

// DocumentPaths resolves document ids to file paths.
func (s *Store) DocumentPaths(ctx context.Context, toolID int64, ids []int64) (map[int64]string, error) {
	if len(ids) == 0 {
		return map[int64]string{}, nil
	}

	lock := s.toolLock(toolID)
	lock.RLock()
	defer lock.RUnlock()

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	q := `SELECT id, file_path FROM ` + documentsTable(toolID) + ` WHERE id IN (` + placeholders + `)`
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, grimerr.Errorf(grimerr.CodeStoreDatabaseFailure, "resolving document paths: %w", err)
	}
	defer func() { _ = rows.Close() }()

	paths := make(map[int64]string, len(ids))
	for rows.Next() {
		var id int64
		var path string
		if err := rows.Scan(&id, &path); err != nil {
			return nil, grimerr.Errorf(grimerr.CodeStoreDatabaseFailure, "scanning document path row: %w", err)
		}
		paths[id] = path
	}
	if err := rows.Err(); err != nil {
		return nil, grimerr.Errorf(grimerr.CodeStoreDatabaseFailure, "iterating document path rows: %w", err)
	}

	return paths, nil
}

// rowQuerier is the common subset of sql.DB and sql.Tx used by the
// dimension guard.
type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// checkDimensions compares an incoming embedding blob length against any
// stored row. Mixing dimensions within one tool is a conflict the operator
// resolves by re-ingesting with replace.
func checkDimensions(ctx context.Context, q rowQuerier, toolID int64, blobLen int) error {
	var stored int
	err := q.QueryRowContext(ctx,
		`SELECT length(embedding) FROM `+vectorsTable(toolID)+` LIMIT 1`).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return grimerr.Errorf(grimerr.CodeStoreDatabaseFailure, "checking stored embedding width: %w", err)
	}

	if stored != blobLen {
		return grimerr.Errorf(grimerr.CodeStoreDimensionConflict,
			"embedding width %d does not match stored width %d; re-ingest the tool with mode=replace",
			blobLen/4, stored/4)
	}
	return nil
}
