// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Grimoire Contributors

package ingest_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grimoire-dev/grimoire/internal/chunker"
	"github.com/grimoire-dev/grimoire/internal/ingest"
	"github.com/grimoire-dev/grimoire/internal/store"
	"github.com/grimoire-dev/grimoire/internal/store/sqlite"
	grimerr "github.com/grimoire-dev/grimoire/pkg/errors"
)

// fakeEncoder emits fixed-width vectors without a real model. Content only
// influences the first component so dimension checks stay exercised.
type fakeEncoder struct {
	err   error
	calls int
}

func (f *fakeEncoder) Encode(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = []float32{float32(len(text)), 1, 0, 0}
	}
	return out, nil
}

type harness struct {
	engine *ingest.Engine
	store  *sqlite.Store
	tool   *store.Tool
	src    string
	enc    *fakeEncoder
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	src := t.TempDir()
	s, err := sqlite.Open(filepath.Join(t.TempDir(), "grimoire.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	tool, err := s.Register(context.Background(), "runbooks", "ops runbooks", src)
	require.NoError(t, err)

	splitter, err := chunker.NewSplitter(8, 2, nil)
	require.NoError(t, err)

	enc := &fakeEncoder{}
	return &harness{
		engine: ingest.NewEngine(s, s, splitter, enc, nil),
		store:  s,
		tool:   tool,
		src:    src,
		enc:    enc,
	}
}

func (h *harness) write(t *testing.T, rel, content string) {
	t.Helper()
	path := filepath.Join(h.src, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func (h *harness) remove(t *testing.T, rel string) {
	t.Helper()
	require.NoError(t, os.Remove(filepath.Join(h.src, filepath.FromSlash(rel))))
}

func (h *harness) run(t *testing.T, mode ingest.Mode) *ingest.Report {
	t.Helper()
	report, err := h.engine.Run(context.Background(), "runbooks", mode)
	require.NoError(t, err)
	return report
}

func (h *harness) count(t *testing.T) int {
	t.Helper()
	n, err := h.store.CountDocuments(context.Background(), h.tool.ID)
	require.NoError(t, err)
	return n
}

func (h *harness) storedPaths(t *testing.T) []string {
	t.Helper()
	hashes, err := h.store.DocumentHashes(context.Background(), h.tool.ID)
	require.NoError(t, err)
	paths := make([]string, 0, len(hashes))
	for p := range hashes {
		paths = append(paths, p)
	}
	return paths
}

func TestRun_NewIngestsDirectory(t *testing.T) {
	h := newHarness(t)
	h.write(t, "restart.md", "stop the worker then start it again")
	h.write(t, "keys.md", "rotate the signing key monthly")
	h.write(t, "deep/nested.md", "nested docs are walked too")

	report := h.run(t, ingest.ModeNew)

	assert.Equal(t, "runbooks", report.Tool)
	assert.Equal(t, ingest.ModeNew, report.Mode)
	assert.Equal(t, 3, report.Added)
	assert.Zero(t, report.Updated)
	assert.Zero(t, report.Deleted)
	assert.Zero(t, report.Unchanged)
	assert.Empty(t, report.Errors)
	assert.NotEmpty(t, report.RunID)

	assert.Equal(t, 3, h.count(t))
	assert.ElementsMatch(t, []string{"restart.md", "keys.md", "deep/nested.md"}, h.storedPaths(t))
}

func TestRun_NewRefusesNonEmptyTool(t *testing.T) {
	h := newHarness(t)
	h.write(t, "restart.md", "stop the worker")
	h.run(t, ingest.ModeNew)

	_, err := h.engine.Run(context.Background(), "runbooks", ingest.ModeNew)
	require.Error(t, err)
	assert.True(t, grimerr.IsConflict(err))
	assert.Equal(t, 1, h.count(t), "a refused run must not touch storage")
}

func TestRun_UpdateIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.write(t, "restart.md", "stop the worker")
	h.write(t, "keys.md", "rotate the key")
	h.run(t, ingest.ModeNew)

	encodes := h.enc.calls
	report := h.run(t, ingest.ModeUpdate)

	assert.Zero(t, report.Added)
	assert.Zero(t, report.Updated)
	assert.Zero(t, report.Deleted)
	assert.Equal(t, 2, report.Unchanged)
	assert.Equal(t, encodes, h.enc.calls, "unchanged files must not be re-encoded")
}

func TestRun_UpdateReingestsChangedFile(t *testing.T) {
	h := newHarness(t)
	h.write(t, "restart.md", "stop the worker")
	h.write(t, "keys.md", "rotate the key")
	h.run(t, ingest.ModeNew)

	h.write(t, "keys.md", "rotate the key weekly, not monthly")
	report := h.run(t, ingest.ModeUpdate)

	assert.Zero(t, report.Added)
	assert.Equal(t, 1, report.Updated)
	assert.Equal(t, 1, report.Unchanged)
	assert.Zero(t, report.Deleted)
	assert.Equal(t, 2, h.count(t))
}

func TestRun_UpdateDeletesRemovedFile(t *testing.T) {
	h := newHarness(t)
	h.write(t, "restart.md", "stop the worker")
	h.write(t, "keys.md", "rotate the key")
	h.run(t, ingest.ModeNew)

	h.remove(t, "keys.md")
	report := h.run(t, ingest.ModeUpdate)

	assert.Equal(t, 1, report.Deleted)
	assert.Equal(t, 1, report.Unchanged)
	assert.Equal(t, 1, h.count(t))
	assert.ElementsMatch(t, []string{"restart.md"}, h.storedPaths(t))
}

func TestRun_UpdatePicksUpNewFile(t *testing.T) {
	h := newHarness(t)
	h.write(t, "restart.md", "stop the worker")
	h.run(t, ingest.ModeNew)

	h.write(t, "fresh.md", "a brand new runbook")
	report := h.run(t, ingest.ModeUpdate)

	assert.Equal(t, 1, report.Added)
	assert.Equal(t, 1, report.Unchanged)
	assert.Equal(t, 2, h.count(t))
}

func TestRun_ReplaceRebuildsFromScratch(t *testing.T) {
	h := newHarness(t)
	h.write(t, "restart.md", "stop the worker")
	h.write(t, "keys.md", "rotate the key")
	h.run(t, ingest.ModeNew)

	h.remove(t, "keys.md")
	report := h.run(t, ingest.ModeReplace)

	// Replace drops storage first, so every surviving file counts as added
	// and removed files simply never reappear.
	assert.Equal(t, 1, report.Added)
	assert.Zero(t, report.Deleted)
	assert.Zero(t, report.Unchanged)
	assert.Equal(t, 1, h.count(t))
}

func TestRun_UnreadableFileSkippedAndReported(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}

	h := newHarness(t)
	h.write(t, "good.md", "readable content")
	h.write(t, "bad.md", "soon unreadable")
	require.NoError(t, os.Chmod(filepath.Join(h.src, "bad.md"), 0o000))
	t.Cleanup(func() { _ = os.Chmod(filepath.Join(h.src, "bad.md"), 0o644) })

	report := h.run(t, ingest.ModeNew)

	assert.Equal(t, 1, report.Added)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, "bad.md", report.Errors[0].Path)
	assert.True(t, grimerr.IsIOFailure(report.Errors[0].Err))

	assert.ElementsMatch(t, []string{"good.md"}, h.storedPaths(t))
}

func TestRun_UnreadableFileKeepsStoredCopy(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}

	h := newHarness(t)
	h.write(t, "bad.md", "was readable once")
	h.run(t, ingest.ModeNew)

	require.NoError(t, os.Chmod(filepath.Join(h.src, "bad.md"), 0o000))
	t.Cleanup(func() { _ = os.Chmod(filepath.Join(h.src, "bad.md"), 0o644) })

	report := h.run(t, ingest.ModeUpdate)

	require.Len(t, report.Errors, 1)
	assert.Zero(t, report.Deleted, "an unreadable file is skipped, not treated as removed")
	assert.Equal(t, 1, h.count(t))
}

func TestRun_HiddenEntriesSkipped(t *testing.T) {
	h := newHarness(t)
	h.write(t, "visible.md", "indexed")
	h.write(t, ".secret", "never indexed")
	h.write(t, ".git/config", "never walked")

	report := h.run(t, ingest.ModeNew)

	assert.Equal(t, 1, report.Added)
	assert.Empty(t, report.Errors)
	assert.ElementsMatch(t, []string{"visible.md"}, h.storedPaths(t))
}

func TestRun_EmptyFileStoredWithoutChunks(t *testing.T) {
	h := newHarness(t)
	h.write(t, "empty.md", "")

	report := h.run(t, ingest.ModeNew)
	assert.Equal(t, 1, report.Added)
	assert.Equal(t, 1, h.count(t))

	// A second update pass sees the stored hash and leaves it alone.
	report = h.run(t, ingest.ModeUpdate)
	assert.Equal(t, 1, report.Unchanged)
}

func TestRun_UnknownTool(t *testing.T) {
	h := newHarness(t)

	_, err := h.engine.Run(context.Background(), "ghost", ingest.ModeNew)
	require.Error(t, err)
	assert.True(t, grimerr.IsNotFound(err))
}

func TestRun_InvalidMode(t *testing.T) {
	h := newHarness(t)

	_, err := h.engine.Run(context.Background(), "runbooks", ingest.Mode("merge"))
	require.Error(t, err)
	assert.True(t, grimerr.IsInvalidInput(err))
}

func TestRun_ModelLoadFailureAbortsRun(t *testing.T) {
	h := newHarness(t)
	h.write(t, "a.md", "first file")
	h.write(t, "b.md", "second file")
	h.enc.err = grimerr.New(grimerr.CodeEmbedModelLoad, "backend down")

	_, err := h.engine.Run(context.Background(), "runbooks", ingest.ModeNew)
	require.Error(t, err)
	assert.True(t, grimerr.IsModelLoad(err))
	assert.Zero(t, h.count(t))
}

func TestRun_EncodeFailureRecordedPerFile(t *testing.T) {
	h := newHarness(t)
	h.write(t, "a.md", "first file")
	h.write(t, "b.md", "second file")
	h.enc.err = errors.New("transient backend hiccup")

	report := h.run(t, ingest.ModeNew)

	assert.Zero(t, report.Added)
	require.Len(t, report.Errors, 2)
	for _, fe := range report.Errors {
		assert.True(t, grimerr.HasCode(fe.Err, grimerr.CodeIngestEncodeFailed))
	}
	assert.Zero(t, h.count(t))
}

func TestParseMode(t *testing.T) {
	for _, valid := range []string{"new", "replace", "update"} {
		mode, err := ingest.ParseMode(valid)
		require.NoError(t, err)
		assert.Equal(t, ingest.Mode(valid), mode)
	}

	_, err := ingest.ParseMode("append")
	require.Error(t, err)
	assert.True(t, grimerr.IsInvalidInput(err))
}
