// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Grimoire Contributors

package embed

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"

	grimerr "github.com/grimoire-dev/grimoire/pkg/errors"
)

// State is the residency state of the cached embedding model.
type State int

const (
	StateUnloaded State = iota
	StateLoading
	StateLoaded
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	default:
		return "unknown"
	}
}

// loadResult is shared by every caller waiting on one load attempt.
type loadResult struct {
	done chan struct{}
	err  error
}

// Cache keeps at most one embedding model resident. The first encode loads
// it; concurrent callers collapse onto the in-flight load; an idle timeout
// or memory pressure unloads it once no encode is active. The mutex guards
// state transitions only — never the inference call itself.
type Cache struct {
	factory     Factory
	idleTimeout time.Duration
	memLimit    uint64
	logger      *slog.Logger

	mu       sync.Mutex
	state    State
	provider Provider
	loading  *loadResult
	active   int
	lastUsed time.Time
	closed   bool

	wg      sync.WaitGroup
	nowFunc func() time.Time
	readMem func() uint64

	janitorStop chan struct{}
	janitorDone chan struct{}
}

// NewCache wraps factory with residency management. idleTimeout <= 0
// disables idle unloading; memoryLimitBytes == 0 disables the heap probe. A
// background janitor runs only when at least one trigger is enabled.
func NewCache(factory Factory, idleTimeout time.Duration, memoryLimitBytes uint64) *Cache {
	c := &Cache{
		factory:     factory,
		idleTimeout: idleTimeout,
		memLimit:    memoryLimitBytes,
		logger:      slog.Default(),
		nowFunc:     time.Now,
		readMem:     heapAlloc,
	}

	if idleTimeout > 0 || memoryLimitBytes > 0 {
		c.janitorStop = make(chan struct{})
		c.janitorDone = make(chan struct{})
		go c.janitor(janitorInterval(idleTimeout))
	}
	return c
}

// State returns the current residency state.
func (c *Cache) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetNowFunc overrides the time source (for testing).
func (c *Cache) SetNowFunc(fn func() time.Time) {
	c.mu.Lock()
	c.nowFunc = fn
	c.mu.Unlock()
}

// Encode embeds texts with the cached model, loading it first if needed.
// The model cannot be unloaded while any encode is in flight.
func (c *Cache) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	p, err := c.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer c.release()

	vecs, err := p.Encode(ctx, texts)
	if err != nil {
		return nil, grimerr.Wrapf(err, grimerr.CodeEmbedEncodeFailure,
			"encoding %d texts with %s", len(texts), p.ModelID())
	}
	if len(vecs) != len(texts) {
		return nil, grimerr.Errorf(grimerr.CodeEmbedResponseInvalid,
			"model %s returned %d vectors for %d texts", p.ModelID(), len(vecs), len(texts))
	}

	c.touch()
	return vecs, nil
}

// acquire returns the loaded provider with the caller registered as an
// active encode. Exactly one caller performs a load; the rest wait on the
// shared result.
func (c *Cache) acquire(ctx context.Context) (Provider, error) {
	for {
		c.mu.Lock()

		if c.closed {
			c.mu.Unlock()
			return nil, grimerr.New(grimerr.CodeEmbedCacheClosed, "embedding cache is closed")
		}

		switch c.state {
		case StateLoaded:
			c.active++
			c.wg.Add(1)
			c.lastUsed = c.nowFunc()
			p := c.provider
			c.mu.Unlock()
			return p, nil

		case StateLoading:
			res := c.loading
			c.mu.Unlock()

			select {
			case <-res.done:
				if res.err != nil {
					return nil, res.err
				}
				// Loaded by someone else; re-acquire.
			case <-ctx.Done():
				return nil, grimerr.Wrapf(ctx.Err(), grimerr.CodeEmbedModelLoad,
					"waiting for embedding model load")
			}

		case StateUnloaded:
			res := &loadResult{done: make(chan struct{})}
			c.loading = res
			c.state = StateLoading
			c.mu.Unlock()

			c.runLoad(ctx, res)
			if res.err != nil {
				return nil, res.err
			}
		}
	}
}

// runLoad invokes the factory and publishes the outcome to every waiter.
// The load is detached from the initiating caller's cancellation: other
// callers may be waiting on this result.
func (c *Cache) runLoad(ctx context.Context, res *loadResult) {
	start := c.nowFunc()
	p, err := c.factory(context.WithoutCancel(ctx))

	c.mu.Lock()
	if err != nil {
		c.state = StateUnloaded
		c.loading = nil
		res.err = grimerr.Wrapf(err, grimerr.CodeEmbedModelLoad, "loading embedding model")
		c.mu.Unlock()
		close(res.done)
		return
	}

	c.state = StateLoaded
	c.provider = p
	c.loading = nil
	c.lastUsed = c.nowFunc()
	took := c.nowFunc().Sub(start)
	c.mu.Unlock()
	close(res.done)

	c.logger.Info("embedding model loaded",
		slog.String("model", p.ModelID()),
		slog.Int("dimensions", p.Dimensions()),
		slog.Duration("took", took))
}

func (c *Cache) release() {
	c.mu.Lock()
	c.active--
	c.mu.Unlock()
	c.wg.Done()
}

// touch refreshes the idle clock after a successful encode.
func (c *Cache) touch() {
	c.mu.Lock()
	c.lastUsed = c.nowFunc()
	c.mu.Unlock()
}

// sweep unloads the model when it has been idle past the timeout or the
// heap exceeds the memory limit. Both triggers require zero active encodes.
func (c *Cache) sweep() {
	var victim Provider
	var reason string

	c.mu.Lock()
	if c.state == StateLoaded && c.active == 0 {
		switch {
		case c.idleTimeout > 0 && c.nowFunc().Sub(c.lastUsed) >= c.idleTimeout:
			reason = "idle timeout"
		case c.memLimit > 0 && c.readMem() > c.memLimit:
			reason = "memory pressure"
		}
		if reason != "" {
			victim = c.provider
			c.provider = nil
			c.state = StateUnloaded
		}
	}
	c.mu.Unlock()

	if victim == nil {
		return
	}

	c.logger.Info("embedding model unloaded",
		slog.String("model", victim.ModelID()),
		slog.String("reason", reason))
	if err := victim.Close(); err != nil {
		c.logger.Warn("closing embedding model", slog.String("error", err.Error()))
	}
}

func (c *Cache) janitor(interval time.Duration) {
	defer close(c.janitorDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.janitorStop:
			return
		}
	}
}

// Close stops the janitor, refuses new encodes, drains in-flight ones, and
// releases the model.
func (c *Cache) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	loading := c.loading
	c.mu.Unlock()

	if c.janitorStop != nil {
		close(c.janitorStop)
		<-c.janitorDone
	}

	if loading != nil {
		<-loading.done
	}

	c.wg.Wait()

	c.mu.Lock()
	victim := c.provider
	c.provider = nil
	c.state = StateUnloaded
	c.mu.Unlock()

	if victim != nil {
		return victim.Close()
	}
	return nil
}

func janitorInterval(idle time.Duration) time.Duration {
	const (
		floor   = time.Second
		ceiling = 30 * time.Second
	)
	if idle <= 0 {
		return ceiling
	}
	iv := idle / 4
	if iv < floor {
		return floor
	}
	if iv > ceiling {
		return ceiling
	}
	return iv
}

func heapAlloc() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapAlloc
}
