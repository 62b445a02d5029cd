// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Grimoire Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/grimoire-dev/grimoire/internal/chunker"
	"github.com/grimoire-dev/grimoire/internal/config"
	"github.com/grimoire-dev/grimoire/internal/embed"
	ollamaprov "github.com/grimoire-dev/grimoire/internal/embed/ollama"
	openaiprov "github.com/grimoire-dev/grimoire/internal/embed/openai"
	"github.com/grimoire-dev/grimoire/internal/ingest"
	"github.com/grimoire-dev/grimoire/internal/search"
	"github.com/grimoire-dev/grimoire/internal/store/sqlite"
	grimerr "github.com/grimoire-dev/grimoire/pkg/errors"
)

// Engines holds the wired subsystems behind one lifecycle. Commands that only
// touch the catalog should use openStore instead; this full wiring starts the
// embedding cache janitor.
type Engines struct {
	Store  *sqlite.Store
	Cache  *embed.Cache
	Ingest *ingest.Engine
	Search *search.Engine
}

// WireEngines opens storage and builds the chunker, embedding cache, and both
// engines from the resolved configuration.
func WireEngines(cfg *config.Config) (*Engines, error) {
	st, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	splitter, err := chunker.NewSplitter(cfg.Chunking.Size, cfg.Chunking.Overlap, nil)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	cache := embed.NewCache(
		encoderFactory(cfg),
		cfg.Embedding.IdleTimeout,
		uint64(cfg.Embedding.MemoryLimitMB)*1024*1024,
	)

	return &Engines{
		Store:  st,
		Cache:  cache,
		Ingest: ingest.NewEngine(st, st, splitter, cache, slog.Default()),
		Search: search.NewEngine(st, st, cache, slog.Default()),
	}, nil
}

// Close releases the cache before the store so no encode can race a closed
// database.
func (e *Engines) Close() error {
	var errs []error
	if e.Cache != nil {
		errs = append(errs, e.Cache.Close())
	}
	if e.Store != nil {
		errs = append(errs, e.Store.Close())
	}
	return errors.Join(errs...)
}

// openStore opens the SQLite store at the configured path.
func openStore(cfg *config.Config) (*sqlite.Store, error) {
	st, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		return nil, grimerr.Wrap(err, grimerr.CodeCLISetupFailure, "opening database "+cfg.Database.Path)
	}
	return st, nil
}

// encoderFactory builds the embedding backend factory from config. The cache
// invokes it on demand, so a missing backend only surfaces when something
// actually encodes.
func encoderFactory(cfg *config.Config) embed.Factory {
	ec := cfg.Embedding

	if ec.Provider == "openai" {
		return func(context.Context) (embed.Provider, error) {
			return openaiprov.New(openaiprov.Config{
				APIKey:     os.Getenv(ec.APIKeyEnv),
				BaseURL:    ec.Endpoint,
				Model:      ec.Model,
				Dimensions: ec.Dimensions,
			})
		}
	}

	ollama := func(device embed.Device) embed.Factory {
		return func(ctx context.Context) (embed.Provider, error) {
			return ollamaprov.New(ctx, ollamaprov.Config{
				Endpoint:   ec.Endpoint,
				Model:      ec.Model,
				Dimensions: ec.Dimensions,
				Device:     device,
			})
		}
	}

	switch embed.Device(ec.Device) {
	case embed.DeviceGPU:
		return ollama(embed.DeviceGPU)
	case embed.DeviceCPU:
		return ollama(embed.DeviceCPU)
	default:
		// auto: try full GPU offload, fall back to CPU-only once per load.
		return embed.FallbackFactory(ollama(embed.DeviceGPU), ollama(embed.DeviceCPU))
	}
}
