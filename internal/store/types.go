// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Grimoire Contributors

package store

import "time"

// CurrentSchemaVersion is the per-tool table layout version written to new
// registry rows. Opening a tool whose stored version is newer than this
// constant fails rather than guessing at an unknown layout.
const CurrentSchemaVersion = 1

// --- Tool types ---

// Tool is a named document collection bound to a source directory. Each tool
// owns a pair of tables (documents_<id>, vectors_<id>) created at
// registration and dropped at deletion.
type Tool struct {
	ID              int64
	Name            string
	Description     string
	SourceDirectory string
	Active          bool
	SchemaVersion   int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ToolUpdate carries the mutable tool fields. Nil pointers leave the stored
// value untouched; an update with both fields nil is a no-op that succeeds.
type ToolUpdate struct {
	Description     *string
	SourceDirectory *string
}

// --- Document types ---

// Document is one ingested file: identity is (tool, file path), and the
// content hash decides whether a re-ingest touches it.
type Document struct {
	ID          int64
	ToolID      int64
	FilePath    string
	ContentHash string
	Content     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ChunkRecord is a chunk ready for insertion, positions are rune offsets
// into the owning document's content.
type ChunkRecord struct {
	Text      string
	StartChar int
	EndChar   int
}

// ChunkHit is a single nearest-neighbor result row. Similarity is
// 1 - cosine distance, so higher is closer.
type ChunkHit struct {
	ID         int64
	DocumentID int64
	Text       string
	StartChar  int
	EndChar    int
	Similarity float64
}
