// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Grimoire Contributors

package sqlite_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/grimoire-dev/grimoire/internal/store"
	"github.com/grimoire-dev/grimoire/internal/store/sqlite"
	"github.com/stretchr/testify/require"
)

// testDir creates a temp directory for a test and returns cleanup func.
func testDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "grimoire-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

// testDBPath returns a temp SQLite database path.
func testDBPath(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join(testDir(t), name+".db")
}

// openStore opens a fresh store on a temp database.
func openStore(t *testing.T, name string) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(testDBPath(t, name))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// registerTool registers a tool backed by a fresh temp source directory.
func registerTool(t *testing.T, s *sqlite.Store, name string) *store.Tool {
	t.Helper()
	tool, err := s.Register(context.Background(), name, name+" docs", testDir(t))
	require.NoError(t, err)
	return tool
}

// insertDoc stores one document with the given chunks, using axis-aligned
// embeddings so distance ordering in tests stays predictable.
func insertDoc(t *testing.T, s *sqlite.Store, toolID int64, path string, chunks []store.ChunkRecord, embeddings [][]float32) *store.Document {
	t.Helper()
	doc := &store.Document{
		FilePath:    path,
		ContentHash: "hash-" + path,
		Content:     "content of " + path,
	}
	require.NoError(t, s.ReplaceDocument(context.Background(), toolID, doc, chunks, embeddings))
	return doc
}
