// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Grimoire Contributors

package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grimoire-dev/grimoire/internal/config"
	grimerr "github.com/grimoire-dev/grimoire/pkg/errors"
)

func wireTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.Database.Path = tmpDB(t)
	cfg.Chunking.Size = 64
	cfg.Chunking.Overlap = 8
	cfg.Embedding.Provider = "ollama"
	cfg.Embedding.Model = "nomic-embed-text"
	cfg.Embedding.Dimensions = 4
	cfg.Embedding.IdleTimeout = time.Minute
	cfg.Display.DefaultFormat = "table"
	cfg.Display.DefaultLimit = 5
	return cfg
}

func TestWireEngines_BuildsAllSubsystems(t *testing.T) {
	engines, err := WireEngines(wireTestConfig(t))
	require.NoError(t, err)

	assert.NotNil(t, engines.Store)
	assert.NotNil(t, engines.Cache)
	assert.NotNil(t, engines.Ingest)
	assert.NotNil(t, engines.Search)
	assert.NoError(t, engines.Close())
}

func TestWireEngines_InvalidChunkingFailsClosed(t *testing.T) {
	cfg := wireTestConfig(t)
	cfg.Chunking.Size = 0

	_, err := WireEngines(cfg)
	require.Error(t, err)
	assert.True(t, grimerr.HasCode(err, grimerr.CodeChunkerConfigInvalid),
		"expected %s, got %v", grimerr.CodeChunkerConfigInvalid, err)
}

func TestOpenStore_InvalidPath(t *testing.T) {
	cfg := wireTestConfig(t)
	cfg.Database.Path = "/dev/null/grimoire.db"

	_, err := openStore(cfg)
	require.Error(t, err)
	assert.True(t, grimerr.HasCode(err, grimerr.CodeCLISetupFailure),
		"expected %s, got %v", grimerr.CodeCLISetupFailure, err)
}

func TestEncoderFactory_SelectsOpenAI(t *testing.T) {
	cfg := wireTestConfig(t)
	cfg.Embedding.Provider = "openai"
	cfg.Embedding.Model = "text-embedding-3-small"
	cfg.Embedding.APIKeyEnv = "GRIMOIRE_TEST_OPENAI_KEY"

	// Without the key in the environment the factory must refuse to build.
	t.Setenv("GRIMOIRE_TEST_OPENAI_KEY", "")
	_, err := encoderFactory(cfg)(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "api key")

	t.Setenv("GRIMOIRE_TEST_OPENAI_KEY", "sk-test")
	p, err := encoderFactory(cfg)(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "text-embedding-3-small", p.ModelID())
	assert.NoError(t, p.Close())
}
