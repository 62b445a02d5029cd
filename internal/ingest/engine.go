// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Grimoire Contributors

// Package ingest synchronizes a tool's stored documents with the files under
// its source directory.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/grimoire-dev/grimoire/internal/chunker"
	"github.com/grimoire-dev/grimoire/internal/store"
	grimerr "github.com/grimoire-dev/grimoire/pkg/errors"
)

// Mode selects how a run treats existing storage.
type Mode string

const (
	// ModeNew ingests into an empty tool and refuses to touch one that
	// already has documents.
	ModeNew Mode = "new"
	// ModeReplace drops everything first, then ingests the full directory.
	ModeReplace Mode = "replace"
	// ModeUpdate reconciles storage against the directory by content hash.
	ModeUpdate Mode = "update"
)

// ParseMode validates a mode string from the CLI or an API caller.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeNew, ModeReplace, ModeUpdate:
		return Mode(s), nil
	default:
		return "", grimerr.Errorf(grimerr.CodeIngestModeInvalid,
			"unknown ingest mode %q, want new, replace, or update", s)
	}
}

// FileError records a file that could not be processed. The run continues
// past it; storage is untouched for that path.
type FileError struct {
	Path string
	Err  error
}

// Report summarizes one sync run.
type Report struct {
	RunID     uuid.UUID
	Tool      string
	Mode      Mode
	Added     int
	Updated   int
	Deleted   int
	Unchanged int
	Errors    []FileError
	Duration  time.Duration
}

// Encoder is the slice of the embedding cache the engine needs.
type Encoder interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
}

// Engine drives sync runs. Encoding happens outside the store's per-tool
// lock: only the transactional row swap runs inside it.
type Engine struct {
	registry store.ToolRegistry
	vectors  store.VectorStore
	splitter *chunker.Splitter
	encoder  Encoder
	logger   *slog.Logger
}

// NewEngine wires a sync engine. A nil logger falls back to slog.Default.
func NewEngine(registry store.ToolRegistry, vectors store.VectorStore, splitter *chunker.Splitter, encoder Encoder, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		registry: registry,
		vectors:  vectors,
		splitter: splitter,
		encoder:  encoder,
		logger:   logger,
	}
}

// fileEntry is one regular file found under the source directory.
type fileEntry struct {
	rel string // slash-separated path relative to the source directory
	abs string
}

// Run executes one sync for the named tool. Per-file failures are recorded
// in the report; failures that poison the whole run (unknown tool, unreadable
// root, mode conflict, model load) abort it.
func (e *Engine) Run(ctx context.Context, toolName string, mode Mode) (*Report, error) {
	start := time.Now()

	if _, err := ParseMode(string(mode)); err != nil {
		return nil, err
	}

	tool, err := e.registry.Resolve(ctx, toolName)
	if err != nil {
		return nil, err
	}

	report := &Report{
		RunID: uuid.New(),
		Tool:  tool.Name,
		Mode:  mode,
	}

	entries, err := e.scan(tool.SourceDirectory, report)
	if err != nil {
		return nil, err
	}

	stored := map[string]string{}
	switch mode {
	case ModeNew:
		n, err := e.vectors.CountDocuments(ctx, tool.ID)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			return nil, grimerr.New(grimerr.CodeIngestNewConflict,
				fmt.Sprintf("tool %s already has %d documents, use mode=update or mode=replace", tool.Name, n),
				grimerr.FieldTool(tool.Name))
		}
	case ModeReplace:
		if err := e.vectors.DeleteAllDocuments(ctx, tool.ID); err != nil {
			return nil, err
		}
	case ModeUpdate:
		stored, err = e.vectors.DocumentHashes(ctx, tool.ID)
		if err != nil {
			return nil, err
		}
	}

	for _, entry := range entries {
		prevHash, known := stored[entry.rel]
		delete(stored, entry.rel)

		changed, err := e.syncFile(ctx, tool.ID, entry, prevHash, known)
		if err != nil {
			if grimerr.IsModelLoad(err) {
				return nil, err
			}
			report.Errors = append(report.Errors, FileError{Path: entry.rel, Err: err})
			continue
		}

		switch {
		case !changed:
			report.Unchanged++
		case known:
			report.Updated++
		default:
			report.Added++
		}
	}

	// Whatever is still in the stored map has no file behind it anymore.
	stale := make([]string, 0, len(stored))
	for rel := range stored {
		stale = append(stale, rel)
	}
	sort.Strings(stale)
	for _, rel := range stale {
		if err := e.vectors.DeleteDocument(ctx, tool.ID, rel); err != nil {
			report.Errors = append(report.Errors, FileError{Path: rel, Err: err})
			continue
		}
		report.Deleted++
	}

	report.Duration = time.Since(start)
	e.logger.Info("ingest run complete",
		slog.String("run_id", report.RunID.String()),
		slog.String("tool", tool.Name),
		slog.String("mode", string(mode)),
		slog.Int("added", report.Added),
		slog.Int("updated", report.Updated),
		slog.Int("deleted", report.Deleted),
		slog.Int("unchanged", report.Unchanged),
		slog.Int("errors", len(report.Errors)),
		slog.Duration("took", report.Duration))
	return report, nil
}

// scan walks the source directory and returns every visible regular file in
// lexical order. Hidden entries are skipped, hidden directories pruned. An
// unreadable root fails the run; unreadable subtrees are reported and
// skipped.
func (e *Engine) scan(root string, report *Report) ([]fileEntry, error) {
	var entries []fileEntry

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return grimerr.Wrap(err, grimerr.CodeIngestWalkFailure,
					"walking source directory "+root, grimerr.FieldPath(root))
			}
			report.Errors = append(report.Errors, FileError{
				Path: relOrSelf(root, path),
				Err:  grimerr.Wrapf(err, grimerr.CodeIngestWalkFailure, "walking %s", path),
			})
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		name := d.Name()
		if d.IsDir() {
			if path != root && len(name) > 0 && name[0] == '.' {
				return fs.SkipDir
			}
			return nil
		}
		if len(name) > 0 && name[0] == '.' {
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		entries = append(entries, fileEntry{rel: relOrSelf(root, path), abs: path})
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}
	return entries, nil
}

// syncFile reads, hashes, chunks, encodes, and stores one file. It reports
// changed=false when the stored hash already matches.
func (e *Engine) syncFile(ctx context.Context, toolID int64, entry fileEntry, prevHash string, known bool) (changed bool, err error) {
	data, err := os.ReadFile(entry.abs)
	if err != nil {
		return false, grimerr.Wrapf(err, grimerr.CodeIngestFileRead, "reading %s", entry.rel)
	}

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	if known && prevHash == hash {
		return false, nil
	}

	content := string(data)
	chunks := e.splitter.Split(content)

	var embeddings [][]float32
	if len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
		}
		embeddings, err = e.encoder.Encode(ctx, texts)
		if err != nil {
			if grimerr.IsModelLoad(err) {
				return false, err
			}
			return false, grimerr.Wrapf(err, grimerr.CodeIngestEncodeFailed,
				"encoding %d chunks of %s", len(chunks), entry.rel)
		}
	}

	records := make([]store.ChunkRecord, len(chunks))
	for i, c := range chunks {
		records[i] = store.ChunkRecord{Text: c.Text, StartChar: c.StartChar, EndChar: c.EndChar}
	}

	doc := &store.Document{FilePath: entry.rel, ContentHash: hash, Content: content}
	if err := e.vectors.ReplaceDocument(ctx, toolID, doc, records, embeddings); err != nil {
		return false, err
	}
	return true, nil
}

// relOrSelf converts path to a slash-separated form relative to root,
// falling back to the path itself when it cannot be made relative.
func relOrSelf(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}
