// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Grimoire Contributors

package store

import (
	"os"
	"path/filepath"
	"regexp"

	grimerr "github.com/grimoire-dev/grimoire/pkg/errors"
)

// MaxToolNameLength bounds tool names; they become part of MCP tool names
// (search_<name>) and table bookkeeping, so they stay short.
const MaxToolNameLength = 64

var toolNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateToolName enforces the naming rule for tools: non-empty, at most
// MaxToolNameLength characters, letters/digits/underscore/hyphen only.
func ValidateToolName(name string) error {
	if name == "" {
		return grimerr.New(grimerr.CodeRegistryToolNameInvalid, "tool name must not be empty")
	}
	if len(name) > MaxToolNameLength {
		return grimerr.Errorf(grimerr.CodeRegistryToolNameInvalid,
			"tool name %q exceeds %d characters", name, MaxToolNameLength)
	}
	if !toolNamePattern.MatchString(name) {
		return grimerr.Errorf(grimerr.CodeRegistryToolNameInvalid,
			"tool name %q may only contain letters, digits, underscores and hyphens", name)
	}
	return nil
}

// ResolveSourceDirectory checks that the path exists and is a directory, and
// returns it in absolute form. Tools always store absolute source paths so a
// later ingest does not depend on the working directory of the process.
func ResolveSourceDirectory(path string) (string, error) {
	if path == "" {
		return "", grimerr.New(grimerr.CodeRegistryToolSourceInvalid, "source directory must not be empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", grimerr.Wrapf(err, grimerr.CodeRegistryToolSourceInvalid, "resolving source directory %q", path)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", grimerr.Wrapf(err, grimerr.CodeRegistryToolSourceInvalid, "source directory %q is not accessible", path)
	}
	if !info.IsDir() {
		return "", grimerr.Errorf(grimerr.CodeRegistryToolSourceInvalid, "source path %q is not a directory", path)
	}
	return abs, nil
}
