// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Grimoire Contributors

// Package openai embeds text through the OpenAI Embeddings API.
package openai

import (
	"context"
	"strings"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/grimoire-dev/grimoire/internal/embed"
	grimerr "github.com/grimoire-dev/grimoire/pkg/errors"
)

// Config holds OpenAI embeddings configuration.
type Config struct {
	APIKey     string // required
	BaseURL    string // optional, useful for testing against a mock server
	Model      string // required, e.g. "text-embedding-3-small"
	Dimensions int    // required, expected vector width
}

// Provider implements embed.Provider using the OpenAI Embeddings API.
type Provider struct {
	client openaisdk.Client
	cfg    Config
}

var _ embed.Provider = (*Provider)(nil)

// New creates an OpenAI embeddings provider. There is no model to warm:
// the API is remote, so construction only validates configuration.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, grimerr.New(grimerr.CodeEmbedModelLoad, "openai: missing api key")
	}
	if cfg.Model == "" {
		return nil, grimerr.New(grimerr.CodeEmbedModelLoad, "openai: model is required")
	}
	if cfg.Dimensions <= 0 {
		return nil, grimerr.Errorf(grimerr.CodeEmbedModelLoad,
			"openai: dimensions must be positive, got %d", cfg.Dimensions)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Provider{client: openaisdk.NewClient(opts...), cfg: cfg}, nil
}

// Factory adapts New to the cache's load hook.
func Factory(cfg Config) embed.Factory {
	return func(_ context.Context) (embed.Provider, error) {
		return New(cfg)
	}
}

// Encode embeds texts in one request. The API may return items out of
// order, so results are placed by index.
func (p *Provider) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	params := openaisdk.EmbeddingNewParams{
		Model: openaisdk.EmbeddingModel(p.cfg.Model),
		Input: openaisdk.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
		EncodingFormat: openaisdk.EmbeddingNewParamsEncodingFormatFloat,
	}
	// Only the v3 embedding models accept a dimensions override.
	if strings.HasPrefix(p.cfg.Model, "text-embedding-3") {
		params.Dimensions = param.NewOpt(int64(p.cfg.Dimensions))
	}

	resp, err := p.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, grimerr.Wrapf(err, grimerr.CodeEmbedEncodeFailure,
			"openai: embedding %d texts with %s", len(texts), p.cfg.Model)
	}
	if len(resp.Data) != len(texts) {
		return nil, grimerr.Errorf(grimerr.CodeEmbedResponseInvalid,
			"openai: got %d embeddings for %d inputs", len(resp.Data), len(texts))
	}

	vecs := make([][]float32, len(texts))
	for _, item := range resp.Data {
		idx := int(item.Index)
		if idx < 0 || idx >= len(texts) {
			return nil, grimerr.Errorf(grimerr.CodeEmbedResponseInvalid,
				"openai: embedding index %d out of range for %d inputs", idx, len(texts))
		}
		if len(item.Embedding) != p.cfg.Dimensions {
			return nil, grimerr.Errorf(grimerr.CodeEmbedDimensionMismatch,
				"openai: model %s produced %d-dimensional vectors, config expects %d",
				p.cfg.Model, len(item.Embedding), p.cfg.Dimensions)
		}
		vec := make([]float32, len(item.Embedding))
		for j, v := range item.Embedding {
			vec[j] = float32(v)
		}
		vecs[idx] = vec
	}

	for i, vec := range vecs {
		if vec == nil {
			return nil, grimerr.Errorf(grimerr.CodeEmbedResponseInvalid,
				"openai: no embedding returned for input %d", i)
		}
	}
	return vecs, nil
}

func (p *Provider) Dimensions() int { return p.cfg.Dimensions }

func (p *Provider) ModelID() string { return p.cfg.Model }

func (p *Provider) Close() error { return nil }
