// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Grimoire Contributors

// Package ollama embeds text through a local Ollama server's /api/embed
// endpoint.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/grimoire-dev/grimoire/internal/embed"
	grimerr "github.com/grimoire-dev/grimoire/pkg/errors"
)

const (
	// DefaultEndpoint is where a stock Ollama install listens.
	DefaultEndpoint = "http://localhost:11434"

	defaultTimeout = 2 * time.Minute

	// keepAlive tells Ollama how long to keep the model resident after a
	// request. The cache drives the real unload policy; this only needs to
	// outlive the gap between consecutive encodes.
	keepAlive = "10m"

	// fullOffload is passed as num_gpu to force every layer onto the GPU.
	fullOffload = 999
)

// Config holds Ollama provider configuration.
type Config struct {
	Endpoint   string        // base URL, DefaultEndpoint when empty
	Model      string        // required, e.g. "nomic-embed-text"
	Dimensions int           // required, expected vector width
	Device     embed.Device  // placement hint, embed.DeviceAuto when empty
	Timeout    time.Duration // per-request timeout, 2m when zero
}

// Provider implements embed.Provider against an Ollama server.
type Provider struct {
	endpoint string
	model    string
	dims     int
	numGPU   *int // nil means let the server decide
	client   *http.Client
}

var _ embed.Provider = (*Provider)(nil)

// New verifies the server is reachable and warms the model with a single
// encode so load cost is paid here, not on the first real request.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.Model == "" {
		return nil, grimerr.New(grimerr.CodeEmbedModelLoad, "ollama: model is required")
	}
	if cfg.Dimensions <= 0 {
		return nil, grimerr.Errorf(grimerr.CodeEmbedModelLoad,
			"ollama: dimensions must be positive, got %d", cfg.Dimensions)
	}

	device := cfg.Device
	if device == "" {
		device = embed.DeviceAuto
	}
	if !device.Valid() {
		return nil, grimerr.Errorf(grimerr.CodeEmbedModelLoad,
			"ollama: unknown device %q", cfg.Device)
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	p := &Provider{
		endpoint: endpoint,
		model:    cfg.Model,
		dims:     cfg.Dimensions,
		numGPU:   numGPUFor(device),
		client:   &http.Client{Timeout: timeout},
	}

	if err := p.ping(ctx); err != nil {
		return nil, err
	}
	if _, err := p.Encode(ctx, []string{"warmup"}); err != nil {
		return nil, grimerr.Wrapf(err, grimerr.CodeEmbedModelLoad,
			"ollama: warming up model %s", cfg.Model)
	}
	return p, nil
}

// Factory adapts New to the cache's load hook.
func Factory(cfg Config) embed.Factory {
	return func(ctx context.Context) (embed.Provider, error) {
		return New(ctx, cfg)
	}
}

// numGPUFor maps the placement hint to Ollama's num_gpu option: 0 keeps
// every layer on the CPU, fullOffload forces them all onto the GPU.
func numGPUFor(device embed.Device) *int {
	switch device {
	case embed.DeviceCPU:
		n := 0
		return &n
	case embed.DeviceGPU:
		n := fullOffload
		return &n
	default:
		return nil
	}
}

// ping checks that the server answers at all before any model work starts.
func (p *Provider) ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+"/api/tags", nil)
	if err != nil {
		return grimerr.Wrapf(err, grimerr.CodeEmbedModelLoad, "ollama: building probe request")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return grimerr.Wrapf(err, grimerr.CodeEmbedModelLoad,
			"ollama: server unreachable at %s", p.endpoint)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return grimerr.Errorf(grimerr.CodeEmbedModelLoad,
			"ollama: probe returned %s", resp.Status)
	}
	return nil
}

type embedRequest struct {
	Model     string         `json:"model"`
	Input     []string       `json:"input"`
	Options   map[string]any `json:"options,omitempty"`
	KeepAlive any            `json:"keep_alive,omitempty"`
}

type embedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

// Encode embeds texts in one request, preserving input order.
func (p *Provider) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	reqBody := embedRequest{
		Model:     p.model,
		Input:     texts,
		KeepAlive: keepAlive,
	}
	if p.numGPU != nil {
		reqBody.Options = map[string]any{"num_gpu": *p.numGPU}
	}

	resp, err := p.post(ctx, reqBody)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, grimerr.Errorf(grimerr.CodeEmbedEncodeFailure,
			"ollama: embed returned %s: %s", resp.Status, bodyExcerpt(resp.Body))
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, grimerr.Wrapf(err, grimerr.CodeEmbedResponseInvalid,
			"ollama: decoding embed response")
	}
	if len(out.Embeddings) != len(texts) {
		return nil, grimerr.Errorf(grimerr.CodeEmbedResponseInvalid,
			"ollama: got %d embeddings for %d inputs", len(out.Embeddings), len(texts))
	}

	vecs := make([][]float32, len(out.Embeddings))
	for i, emb := range out.Embeddings {
		if len(emb) != p.dims {
			return nil, grimerr.Errorf(grimerr.CodeEmbedDimensionMismatch,
				"ollama: model %s produced %d-dimensional vectors, config expects %d",
				p.model, len(emb), p.dims)
		}
		vec := make([]float32, len(emb))
		for j, v := range emb {
			vec[j] = float32(v)
		}
		vecs[i] = vec
	}
	return vecs, nil
}

func (p *Provider) Dimensions() int { return p.dims }

func (p *Provider) ModelID() string { return p.model }

// Close asks the server to drop the model now instead of waiting out its
// keep-alive. Best effort: the server reclaims it on its own timer anyway.
func (p *Provider) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := p.post(ctx, embedRequest{Model: p.model, Input: []string{}, KeepAlive: 0})
	if err == nil {
		_ = resp.Body.Close()
	}
	return nil
}

func (p *Provider) post(ctx context.Context, body embedRequest) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, grimerr.Wrapf(err, grimerr.CodeEmbedEncodeFailure,
			"ollama: encoding request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"/api/embed", bytes.NewReader(data))
	if err != nil {
		return nil, grimerr.Wrapf(err, grimerr.CodeEmbedEncodeFailure,
			"ollama: building request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, grimerr.Wrapf(err, grimerr.CodeEmbedEncodeFailure,
			"ollama: embed request to %s", p.endpoint)
	}
	return resp, nil
}

func bodyExcerpt(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, 2048))
	if err != nil || len(b) == 0 {
		return "<no body>"
	}
	return string(bytes.TrimSpace(b))
}
