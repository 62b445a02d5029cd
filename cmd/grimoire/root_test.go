// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Grimoire Contributors

package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grimoire-dev/grimoire/internal/config"
	grimerr "github.com/grimoire-dev/grimoire/pkg/errors"
)

// testHome points HOME at a scratch directory so config discovery and
// bootstrap stay inside the test, and resets the global Viper so state from
// one test cannot bleed into the next.
func testHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	viper.Reset()
	t.Cleanup(viper.Reset)
	return home
}

// runCLI executes the root command with the given arguments, capturing
// stdout and stderr together.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func tmpDB(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "grimoire.db")
}

func TestRootCommand_Help(t *testing.T) {
	testHome(t)

	out, err := runCLI(t, "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "grimoire")
	assert.Contains(t, out, "tool")
	assert.Contains(t, out, "ingest")
	assert.Contains(t, out, "search")
	assert.Contains(t, out, "serve")
	assert.Contains(t, out, "version")
}

func TestRootCommand_GlobalFlags(t *testing.T) {
	testHome(t)

	out, err := runCLI(t, "--verbose", "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "--config")
	assert.Contains(t, out, "--db")
	assert.Contains(t, out, "--output")
	assert.Contains(t, out, "--verbose")
}

func TestVersionCommand(t *testing.T) {
	testHome(t)

	out, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "grimoire dev")
	assert.Contains(t, out, "commit:")
}

func TestRootCommand_MissingConfigFileFails(t *testing.T) {
	testHome(t)

	_, err := runCLI(t, "--config", "/nonexistent/grimoire.yaml", "version")
	require.Error(t, err)
	assert.True(t, grimerr.HasCode(err, grimerr.CodeConfigLoadReadFailure),
		"expected %s, got %v", grimerr.CodeConfigLoadReadFailure, err)
}

func TestRootCommand_MalformedConfigFails(t *testing.T) {
	testHome(t)
	path := filepath.Join(t.TempDir(), "grimoire.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chunking: ["), 0o600))

	_, err := runCLI(t, "--config", path, "version")
	require.Error(t, err)
	assert.ErrorContains(t, err, "reading config file")
}

func TestRootCommand_BootstrapsDefaultConfig(t *testing.T) {
	home := testHome(t)

	_, err := runCLI(t, "version")
	require.NoError(t, err)

	written, err := os.ReadFile(filepath.Join(home, ".config", "grimoire", "grimoire.yaml"))
	require.NoError(t, err, "first run without a config should bootstrap one")
	assert.Equal(t, config.DefaultConfigYAML, written)
}

func TestRootCommand_ConfigFileDiscovery(t *testing.T) {
	home := testHome(t)
	dbPath := filepath.Join(t.TempDir(), "custom.db")

	cfgDir := filepath.Join(home, ".config", "grimoire")
	require.NoError(t, os.MkdirAll(cfgDir, 0o755))
	cfgYAML := fmt.Sprintf("database:\n  path: %s\n", dbPath)
	require.NoError(t, os.WriteFile(filepath.Join(cfgDir, "grimoire.yaml"), []byte(cfgYAML), 0o600))

	out, err := runCLI(t, "tool", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No tools registered")
	assert.FileExists(t, dbPath, "database.path from the discovered config should be used")
}

func TestRootCommand_UnknownOutputFormat(t *testing.T) {
	testHome(t)

	_, err := runCLI(t, "tool", "list", "-o", "xml", "--db", tmpDB(t))
	require.Error(t, err)
	assert.ErrorContains(t, err, "display.default_format")
}
