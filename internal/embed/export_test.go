// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Grimoire Contributors

package embed

// Sweep exposes the janitor's sweep for deterministic lifecycle tests.
var Sweep = (*Cache).sweep

// SetMemProbe overrides the heap probe (for testing).
func SetMemProbe(c *Cache, fn func() uint64) {
	c.mu.Lock()
	c.readMem = fn
	c.mu.Unlock()
}

// ActiveEncodes reports the in-flight encode count (for testing).
func ActiveEncodes(c *Cache) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}
