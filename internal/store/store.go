// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Grimoire Contributors

package store

import "context"

// ToolRegistry manages the tool catalog and the per-tool schema lifecycle.
type ToolRegistry interface {
	// Register validates the name and source directory, inserts the catalog
	// row, and provisions the tool's document/vector tables in one
	// transaction.
	Register(ctx context.Context, name, description, sourceDir string) (*Tool, error)
	// Resolve returns the tool by exact name.
	Resolve(ctx context.Context, name string) (*Tool, error)
	// List returns tools in creation order; inactive tools only when asked.
	List(ctx context.Context, includeInactive bool) ([]*Tool, error)
	// Update applies the non-nil fields and bumps updated_at. No fields set
	// is a successful no-op.
	Update(ctx context.Context, name string, upd ToolUpdate) (*Tool, error)
	// SetActive flips the active flag without touching stored documents.
	SetActive(ctx context.Context, name string, active bool) error
	// Delete removes the catalog row and drops both per-tool tables in one
	// transaction.
	Delete(ctx context.Context, name string) error
}

// VectorStore persists documents and their embedded chunks per tool and
// serves nearest-neighbor queries. Write operations take the tool's
// exclusive section; queries share it.
type VectorStore interface {
	// DocumentHashes returns file path → content hash for every stored
	// document of the tool.
	DocumentHashes(ctx context.Context, toolID int64) (map[string]string, error)
	// CountDocuments reports how many documents the tool currently stores.
	CountDocuments(ctx context.Context, toolID int64) (int, error)
	// ReplaceDocument atomically swaps the stored rows for doc.FilePath:
	// the old document row and its chunks are deleted and the new rows
	// inserted in a single transaction. len(chunks) must equal
	// len(embeddings).
	ReplaceDocument(ctx context.Context, toolID int64, doc *Document, chunks []ChunkRecord, embeddings [][]float32) error
	// DeleteDocument removes one document and its chunks.
	DeleteDocument(ctx context.Context, toolID int64, filePath string) error
	// DeleteAllDocuments purges every document and chunk for the tool.
	DeleteAllDocuments(ctx context.Context, toolID int64) error
	// Query returns up to k chunks ordered by ascending cosine distance,
	// ties broken by ascending chunk id. Fewer than k stored chunks is not
	// an error.
	Query(ctx context.Context, toolID int64, embedding []float32, k int) ([]ChunkHit, error)
	// DocumentPaths resolves document ids to file paths for result
	// enrichment.
	DocumentPaths(ctx context.Context, toolID int64, ids []int64) (map[int64]string, error)
}
