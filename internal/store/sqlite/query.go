// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Grimoire Contributors

package sqlite

import (
	"context"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"

	"github.com/grimoire-dev/grimoire/internal/store"
	grimerr "github.com/grimoire-dev/grimoire/pkg/errors"
)

// Query runs a k-nearest-neighbor scan over the tool's chunks using cosine
// distance. Results come back ordered by ascending distance with ties broken
// by ascending chunk id, so equal-distance runs are stable across calls.
// Fewer than k stored chunks is not an error.
func (s *Store) Query(ctx context.Context, toolID int64, embedding []float32, k int) ([]store.ChunkHit, error) {
	if k < 1 {
		return nil, grimerr.Errorf(grimerr.CodeStoreQueryInvalid, "k must be >= 1, got %d", k)
	}
	if len(embedding) == 0 {
		return nil, grimerr.New(grimerr.CodeStoreQueryInvalid, "query embedding must not be empty")
	}

	blob, err := sqlite_vec.SerializeFloat32(embedding)
	if err != nil {
		return nil, grimerr.Errorf(grimerr.CodeStoreDatabaseFailure, "serializing query embedding: %w", err)
	}

	lock := s.toolLock(toolID)
	lock.RLock()
	defer lock.RUnlock()

	if err := checkDimensions(ctx, s.db, toolID, len(blob)); err != nil {
		return nil, err
	}

	q := `SELECT id, document_id, chunk_text, start_position, end_position,
vec_distance_cosine(embedding, ?) AS distance
FROM ` + vectorsTable(toolID) + `
WHERE tool_id = ?
ORDER BY distance ASC, id ASC
LIMIT ?`

	rows, err := s.db.QueryContext(ctx, q, blob, toolID, k)
	if err != nil {
		return nil, grimerr.Errorf(grimerr.CodeStoreDatabaseFailure, "querying chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var hits []store.ChunkHit
	for rows.Next() {
		var hit store.ChunkHit
		var distance float64

		if err := rows.Scan(&hit.ID, &hit.DocumentID, &hit.Text, &hit.StartChar, &hit.EndChar, &distance); err != nil {
			return nil, grimerr.Errorf(grimerr.CodeStoreDatabaseFailure, "scanning chunk hit: %w", err)
		}

		hit.Similarity = 1 - distance
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, grimerr.Errorf(grimerr.CodeStoreDatabaseFailure, "iterating chunk hits: %w", err)
	}

	return hits, nil
}
