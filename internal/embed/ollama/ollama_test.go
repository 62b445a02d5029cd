// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Grimoire Contributors

package ollama_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grimoire-dev/grimoire/internal/embed"
	"github.com/grimoire-dev/grimoire/internal/embed/ollama"
	grimerr "github.com/grimoire-dev/grimoire/pkg/errors"
)

// embedCall is the decoded body of one /api/embed request.
type embedCall struct {
	Model     string         `json:"model"`
	Input     []string       `json:"input"`
	Options   map[string]any `json:"options"`
	KeepAlive any            `json:"keep_alive"`
}

// fakeServer answers /api/tags and /api/embed like a healthy Ollama,
// recording every embed call it receives.
type fakeServer struct {
	*httptest.Server

	dims int

	mu    sync.Mutex
	calls []embedCall
}

func newFakeServer(t *testing.T, dims int) *fakeServer {
	t.Helper()
	f := &fakeServer{dims: dims}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"models":[]}`))
	})
	mux.HandleFunc("/api/embed", func(w http.ResponseWriter, r *http.Request) {
		var call embedCall
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&call))
		f.mu.Lock()
		f.calls = append(f.calls, call)
		f.mu.Unlock()

		embeddings := make([][]float64, len(call.Input))
		for i := range embeddings {
			vec := make([]float64, f.dims)
			vec[0] = float64(i + 1)
			embeddings[i] = vec
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": embeddings})
	})

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Server.Close)
	return f
}

func (f *fakeServer) embedCalls() []embedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]embedCall(nil), f.calls...)
}

func (f *fakeServer) config(dims int) ollama.Config {
	return ollama.Config{
		Endpoint:   f.URL,
		Model:      "nomic-embed-text",
		Dimensions: dims,
	}
}

func TestNew_ProbesAndWarmsUp(t *testing.T) {
	srv := newFakeServer(t, 4)

	p, err := ollama.New(context.Background(), srv.config(4))
	require.NoError(t, err)
	assert.Equal(t, 4, p.Dimensions())
	assert.Equal(t, "nomic-embed-text", p.ModelID())

	calls := srv.embedCalls()
	require.Len(t, calls, 1, "construction should issue exactly one warm-up encode")
	assert.Equal(t, "nomic-embed-text", calls[0].Model)
	assert.Equal(t, []string{"warmup"}, calls[0].Input)
	assert.Equal(t, "10m", calls[0].KeepAlive)
}

func TestNew_ConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  ollama.Config
	}{
		{"missing model", ollama.Config{Dimensions: 4}},
		{"zero dimensions", ollama.Config{Model: "m"}},
		{"negative dimensions", ollama.Config{Model: "m", Dimensions: -1}},
		{"unknown device", ollama.Config{Model: "m", Dimensions: 4, Device: "tpu"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ollama.New(context.Background(), tt.cfg)
			require.Error(t, err)
			assert.True(t, grimerr.HasCode(err, grimerr.CodeEmbedModelLoad),
				"expected %s, got %s", grimerr.CodeEmbedModelLoad, grimerr.CodeOf(err))
		})
	}
}

func TestNew_ServerUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	deadURL := srv.URL
	srv.Close()

	cfg := ollama.Config{Endpoint: deadURL, Model: "m", Dimensions: 4}
	_, err := ollama.New(context.Background(), cfg)
	require.Error(t, err)
	assert.True(t, grimerr.IsModelLoad(err))
	assert.ErrorContains(t, err, "unreachable")
}

func TestNew_ProbeRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := ollama.Config{Endpoint: srv.URL, Model: "m", Dimensions: 4}
	_, err := ollama.New(context.Background(), cfg)
	require.Error(t, err)
	assert.True(t, grimerr.HasCode(err, grimerr.CodeEmbedModelLoad))
	assert.ErrorContains(t, err, "probe")
}

func TestEncode_BatchPreservesOrder(t *testing.T) {
	srv := newFakeServer(t, 4)
	p, err := ollama.New(context.Background(), srv.config(4))
	require.NoError(t, err)

	vecs, err := p.Encode(context.Background(), []string{"first", "second", "third"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, float32(1), vecs[0][0])
	assert.Equal(t, float32(2), vecs[1][0])
	assert.Equal(t, float32(3), vecs[2][0])

	calls := srv.embedCalls()
	require.Len(t, calls, 2) // warm-up plus the batch
	assert.Equal(t, []string{"first", "second", "third"}, calls[1].Input)
}

func TestEncode_DevicePlacement(t *testing.T) {
	tests := []struct {
		name    string
		device  embed.Device
		wantGPU any // nil means options must be absent
	}{
		{"auto omits options", embed.DeviceAuto, nil},
		{"cpu pins zero layers", embed.DeviceCPU, float64(0)},
		{"gpu forces full offload", embed.DeviceGPU, float64(999)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newFakeServer(t, 4)
			cfg := srv.config(4)
			cfg.Device = tt.device

			_, err := ollama.New(context.Background(), cfg)
			require.NoError(t, err)

			calls := srv.embedCalls()
			require.NotEmpty(t, calls)
			if tt.wantGPU == nil {
				assert.Nil(t, calls[0].Options)
			} else {
				require.NotNil(t, calls[0].Options)
				assert.Equal(t, tt.wantGPU, calls[0].Options["num_gpu"])
			}
		})
	}
}

func TestEncode_EmptyInputSkipsRequest(t *testing.T) {
	srv := newFakeServer(t, 4)
	p, err := ollama.New(context.Background(), srv.config(4))
	require.NoError(t, err)

	vecs, err := p.Encode(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)
	assert.Len(t, srv.embedCalls(), 1, "only the warm-up should have hit the server")
}

func TestEncode_ServerError(t *testing.T) {
	var failing bool
	var mu sync.Mutex

	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"models":[]}`))
	})
	mux.HandleFunc("/api/embed", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		fail := failing
		mu.Unlock()
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`model exploded`))
			return
		}
		var call embedCall
		_ = json.NewDecoder(r.Body).Decode(&call)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"embeddings": [][]float64{make([]float64, 4)},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := ollama.Config{Endpoint: srv.URL, Model: "m", Dimensions: 4}
	p, err := ollama.New(context.Background(), cfg)
	require.NoError(t, err)

	mu.Lock()
	failing = true
	mu.Unlock()

	_, err = p.Encode(context.Background(), []string{"q"})
	require.Error(t, err)
	assert.True(t, grimerr.HasCode(err, grimerr.CodeEmbedEncodeFailure),
		"expected %s, got %s", grimerr.CodeEmbedEncodeFailure, grimerr.CodeOf(err))
	assert.ErrorContains(t, err, "model exploded")
}

func TestEncode_CountMismatchRejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"models":[]}`))
	})
	mux.HandleFunc("/api/embed", func(w http.ResponseWriter, _ *http.Request) {
		// Always one embedding, whatever the batch size.
		_ = json.NewEncoder(w).Encode(map[string]any{
			"embeddings": [][]float64{make([]float64, 4)},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := ollama.Config{Endpoint: srv.URL, Model: "m", Dimensions: 4}
	p, err := ollama.New(context.Background(), cfg)
	require.NoError(t, err)

	_, err = p.Encode(context.Background(), []string{"a", "b"})
	require.Error(t, err)
	assert.True(t, grimerr.HasCode(err, grimerr.CodeEmbedResponseInvalid))
	assert.ErrorContains(t, err, "1 embeddings for 2 inputs")
}

func TestEncode_DimensionMismatchRejected(t *testing.T) {
	var shrink bool
	var mu sync.Mutex

	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"models":[]}`))
	})
	mux.HandleFunc("/api/embed", func(w http.ResponseWriter, r *http.Request) {
		var call embedCall
		_ = json.NewDecoder(r.Body).Decode(&call)
		mu.Lock()
		width := 4
		if shrink {
			width = 3
		}
		mu.Unlock()
		embeddings := make([][]float64, len(call.Input))
		for i := range embeddings {
			embeddings[i] = make([]float64, width)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": embeddings})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := ollama.Config{Endpoint: srv.URL, Model: "m", Dimensions: 4}
	p, err := ollama.New(context.Background(), cfg)
	require.NoError(t, err)

	mu.Lock()
	shrink = true
	mu.Unlock()

	_, err = p.Encode(context.Background(), []string{"q"})
	require.Error(t, err)
	assert.True(t, grimerr.HasCode(err, grimerr.CodeEmbedDimensionMismatch))
	assert.ErrorContains(t, err, "3-dimensional")
}

func TestEncode_MalformedResponseRejected(t *testing.T) {
	var garble bool
	var mu sync.Mutex

	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"models":[]}`))
	})
	mux.HandleFunc("/api/embed", func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		bad := garble
		mu.Unlock()
		if bad {
			_, _ = w.Write([]byte(`this is not json`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"embeddings": [][]float64{make([]float64, 4)},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := ollama.Config{Endpoint: srv.URL, Model: "m", Dimensions: 4}
	p, err := ollama.New(context.Background(), cfg)
	require.NoError(t, err)

	mu.Lock()
	garble = true
	mu.Unlock()

	_, err = p.Encode(context.Background(), []string{"q"})
	require.Error(t, err)
	assert.True(t, grimerr.HasCode(err, grimerr.CodeEmbedResponseInvalid))
}

func TestClose_ReleasesModel(t *testing.T) {
	srv := newFakeServer(t, 4)
	p, err := ollama.New(context.Background(), srv.config(4))
	require.NoError(t, err)

	require.NoError(t, p.Close())

	calls := srv.embedCalls()
	require.Len(t, calls, 2)
	release := calls[1]
	assert.Empty(t, release.Input)
	assert.Equal(t, float64(0), release.KeepAlive, "release must zero the keep-alive")
}

func TestClose_ToleratesDeadServer(t *testing.T) {
	srv := newFakeServer(t, 4)
	p, err := ollama.New(context.Background(), srv.config(4))
	require.NoError(t, err)

	srv.Server.Close()
	assert.NoError(t, p.Close())
}
