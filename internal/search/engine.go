// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Grimoire Contributors

// Package search answers natural-language queries against one tool's stored
// chunks.
package search

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/grimoire-dev/grimoire/internal/store"
	grimerr "github.com/grimoire-dev/grimoire/pkg/errors"
)

// Result is one ranked chunk, enriched with the path of the document it was
// cut from. Score is cosine similarity, higher is closer.
type Result struct {
	DocumentPath string  `json:"document_path" yaml:"document_path"`
	Text         string  `json:"text" yaml:"text"`
	Score        float64 `json:"score" yaml:"score"`
	StartChar    int     `json:"start_char" yaml:"start_char"`
	EndChar      int     `json:"end_char" yaml:"end_char"`
}

// Encoder is the slice of the embedding cache the engine needs.
type Encoder interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
}

// Engine resolves a tool, embeds the query, and runs the nearest-neighbor
// lookup. It holds no state of its own and is safe for concurrent use.
type Engine struct {
	registry store.ToolRegistry
	vectors  store.VectorStore
	encoder  Encoder
	logger   *slog.Logger
}

// NewEngine wires a search engine. A nil logger falls back to slog.Default.
func NewEngine(registry store.ToolRegistry, vectors store.VectorStore, encoder Encoder, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		registry: registry,
		vectors:  vectors,
		encoder:  encoder,
		logger:   logger,
	}
}

// Search returns up to k chunks of the named tool ranked by similarity to
// query. Disabled tools refuse queries so a hidden collection cannot leak
// through search.
func (e *Engine) Search(ctx context.Context, toolName, query string, k int) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, grimerr.New(grimerr.CodeSearchQueryInvalid, "query must not be empty")
	}
	if k < 1 {
		return nil, grimerr.Errorf(grimerr.CodeSearchQueryInvalid,
			"result limit must be at least 1, got %d", k)
	}

	tool, err := e.registry.Resolve(ctx, toolName)
	if err != nil {
		return nil, err
	}
	if !tool.Active {
		return nil, grimerr.New(grimerr.CodeRegistryToolInactive,
			"tool "+tool.Name+" is disabled", grimerr.FieldTool(tool.Name))
	}

	start := time.Now()
	embeddings, err := e.encoder.Encode(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(embeddings) != 1 {
		return nil, grimerr.Errorf(grimerr.CodeEmbedResponseInvalid,
			"encoder returned %d vectors for one query", len(embeddings))
	}

	hits, err := e.vectors.Query(ctx, tool.ID, embeddings[0], k)
	if err != nil {
		return nil, err
	}

	results, err := e.enrich(ctx, tool.ID, hits)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("search complete",
		slog.String("tool", tool.Name),
		slog.Int("k", k),
		slog.Int("results", len(results)),
		slog.Duration("took", time.Since(start)))
	return results, nil
}

// enrich joins chunk hits with their document paths in one lookup.
func (e *Engine) enrich(ctx context.Context, toolID int64, hits []store.ChunkHit) ([]Result, error) {
	if len(hits) == 0 {
		return []Result{}, nil
	}

	seen := make(map[int64]struct{}, len(hits))
	ids := make([]int64, 0, len(hits))
	for _, h := range hits {
		if _, ok := seen[h.DocumentID]; ok {
			continue
		}
		seen[h.DocumentID] = struct{}{}
		ids = append(ids, h.DocumentID)
	}

	paths, err := e.vectors.DocumentPaths(ctx, toolID, ids)
	if err != nil {
		return nil, err
	}

	results := make([]Result, len(hits))
	for i, h := range hits {
		results[i] = Result{
			DocumentPath: paths[h.DocumentID],
			Text:         h.Text,
			Score:        h.Similarity,
			StartChar:    h.StartChar,
			EndChar:      h.EndChar,
		}
	}
	return results, nil
}
