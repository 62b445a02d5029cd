// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Grimoire Contributors

// Package embed manages embedding model lifecycle: providers encode text,
// the cache decides when a model is resident.
package embed

import (
	"context"
	"log/slog"

	grimerr "github.com/grimoire-dev/grimoire/pkg/errors"
)

// Provider encodes batches of text into fixed-width embedding vectors.
// Implementations are safe for concurrent Encode calls once constructed.
type Provider interface {
	// Encode returns one vector per input text, in input order.
	Encode(ctx context.Context, texts []string) ([][]float32, error)
	// Dimensions reports the vector width this provider produces.
	Dimensions() int
	// ModelID identifies the loaded model for logging and diagnostics.
	ModelID() string
	// Close releases the model.
	Close() error
}

// Factory constructs and warms a Provider. The cache calls it once per load,
// so backend and device selection happen here, never per encode.
type Factory func(ctx context.Context) (Provider, error)

// Device is the requested placement for local embedding backends.
type Device string

const (
	DeviceAuto Device = "auto"
	DeviceGPU  Device = "gpu"
	DeviceCPU  Device = "cpu"
)

// Valid reports whether the device is a known placement.
func (d Device) Valid() bool {
	switch d {
	case DeviceAuto, DeviceGPU, DeviceCPU:
		return true
	default:
		return false
	}
}

// FallbackFactory tries primary and falls back once per load attempt. The
// choice is not revisited until the model is unloaded and loaded again.
func FallbackFactory(primary, fallback Factory) Factory {
	return func(ctx context.Context) (Provider, error) {
		p, err := primary(ctx)
		if err == nil {
			return p, nil
		}

		slog.Warn("primary embedding backend unavailable, trying fallback",
			slog.String("error", err.Error()))

		p, ferr := fallback(ctx)
		if ferr != nil {
			return nil, grimerr.Wrapf(ferr, grimerr.CodeEmbedModelLoad,
				"fallback backend failed after primary error: %v", err)
		}
		return p, nil
	}
}
