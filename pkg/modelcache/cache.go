// Package modelcache maintains a time-boxed index of (provider, model)
// pairs discovered from upstream "list models" endpoints. The whole cache
// is one snapshot with a single staleness clock: readers copy it under a
// shared lock, writers replace it atomically, and a failed refresh leaves
// the previous snapshot authoritative.
//
// Model-name resolution is strict by design: both sides are normalized
// (lower-cased, with hyphens, underscores, and dots removed, and any
// "provider/" prefix stripped) and compared for exact equality. Fuzzy or
// partial matching is deliberately not offered, so a request is never
// silently routed to the wrong model family.
package modelcache

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Validity is how long a snapshot stays fresh.
const Validity = 30 * time.Minute

// Entry is one discovered (provider, model) pair.
type Entry struct {
	// Provider is the provider identifier that serves the model.
	Provider string `json:"provider"`

	// Model is the model identifier as reported by the provider, without
	// any "provider/" prefix.
	Model string `json:"model"`
}

// snapshot is the cache state replaced atomically on refresh.
type snapshot struct {
	CachedAt time.Time `json:"cached_at"`
	Models   []Entry   `json:"models"`

	// Providers maps provider name to the models it reported, for
	// dashboard-style consumers.
	Providers map[string][]string `json:"providers"`
}

// Cache is the shared model index. The zero value is not usable; use New.
type Cache struct {
	mu   sync.RWMutex
	snap snapshot

	logger *slog.Logger

	// now is injected for deterministic expiry tests.
	now func() time.Time
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{
		logger: slog.Default().With("component", "modelcache"),
		now:    time.Now,
	}
}

// SetClock replaces the cache's time source. Intended for tests.
func (c *Cache) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Replace installs a new snapshot built from the given entries, stamped
// with the current time. Duplicate (provider, model) pairs are dropped
// while preserving discovery order.
func (c *Cache) Replace(entries []Entry) {
	seen := make(map[Entry]bool, len(entries))
	models := make([]Entry, 0, len(entries))
	providers := make(map[string][]string)

	for _, e := range entries {
		if seen[e] {
			continue
		}
		seen[e] = true
		models = append(models, e)
		providers[e.Provider] = append(providers[e.Provider], e.Model)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap = snapshot{
		CachedAt:  c.now(),
		Models:    models,
		Providers: providers,
	}
}

// Models returns a copy of all cached entries.
func (c *Cache) Models() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Entry, len(c.snap.Models))
	copy(out, c.snap.Models)
	return out
}

// ProviderModels returns the cached provider-to-models mapping.
func (c *Cache) ProviderModels() map[string][]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string][]string, len(c.snap.Providers))
	for name, models := range c.snap.Providers {
		out[name] = append([]string(nil), models...)
	}
	return out
}

// IsValid reports whether the snapshot is younger than the validity
// window. It is a pure time comparison; no I/O.
func (c *Cache) IsValid() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snap.CachedAt.IsZero() {
		return false
	}
	return c.now().Sub(c.snap.CachedAt) <= Validity
}

// Age returns the snapshot age, or a very large duration when the cache
// has never been filled.
func (c *Cache) Age() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snap.CachedAt.IsZero() {
		return 1<<63 - 1
	}
	return c.now().Sub(c.snap.CachedAt)
}

// FindProviders returns every cached entry whose model identifier
// strictly matches the queried name after normalization. Results preserve
// discovery order and are de-duplicated.
func (c *Cache) FindProviders(modelName string) []Entry {
	requested := NormalizeModelName(modelName)
	if requested == "" {
		return nil
	}

	c.mu.RLock()
	models := c.snap.Models
	c.mu.RUnlock()

	var matches []Entry
	for _, e := range models {
		if NormalizeModelName(e.Model) == requested {
			matches = append(matches, e)
		}
	}
	return matches
}

// NormalizeModelName lower-cases a model identifier, strips any
// "provider/" prefix, and removes hyphens, underscores, and dots, yielding
// the canonical form used for strict comparison.
func NormalizeModelName(name string) string {
	if idx := strings.Index(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	name = strings.ToLower(name)
	replacer := strings.NewReplacer("-", "", "_", "", ".", "")
	return replacer.Replace(name)
}

// SaveSnapshot persists the current snapshot as JSON. The on-disk shape is
// an implementation detail of the cache, not a contract.
func (c *Cache) SaveSnapshot(path string) error {
	c.mu.RLock()
	snap := c.snap
	c.mu.RUnlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadSnapshot restores a persisted snapshot if it exists and is still
// within the validity window. It reports whether a snapshot was loaded.
func (c *Cache) LoadSnapshot(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		c.logger.Warn("ignoring corrupt model cache snapshot", "path", path, "error", err)
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if snap.CachedAt.IsZero() || c.now().Sub(snap.CachedAt) > Validity {
		return false
	}
	c.snap = snap
	c.logger.Info("loaded model cache snapshot",
		"path", path,
		"models", len(snap.Models),
		"age", c.now().Sub(snap.CachedAt).Round(time.Second),
	)
	return true
}
