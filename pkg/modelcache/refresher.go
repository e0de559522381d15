package modelcache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// FetchFunc performs one discovery sweep and returns the entries found.
// An error means the sweep failed wholesale and the cache must keep its
// current snapshot.
type FetchFunc func(ctx context.Context) ([]Entry, error)

// Refresher keeps a Cache fresh by running a discovery sweep on a fixed
// schedule. Sweep failures are logged and the previous snapshot stays in
// place until the next scheduled run succeeds.
type Refresher struct {
	cache        *Cache
	fetch        FetchFunc
	interval     time.Duration
	snapshotPath string

	logger *slog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewRefresher creates a background refresher for the given cache. The
// snapshotPath may be empty to disable persistence.
func NewRefresher(cache *Cache, fetch FetchFunc, interval time.Duration, snapshotPath string) *Refresher {
	return &Refresher{
		cache:        cache,
		fetch:        fetch,
		interval:     interval,
		snapshotPath: snapshotPath,
		logger:       slog.Default().With("component", "modelcache.refresher"),
	}
}

// Start schedules periodic refreshes and, if the cache is not already
// valid, runs one sweep immediately in the background.
func (r *Refresher) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return fmt.Errorf("refresher already running")
	}

	c := cron.New()
	spec := fmt.Sprintf("@every %s", r.interval)
	if _, err := c.AddFunc(spec, func() { r.RefreshNow(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule model refresh: %w", err)
	}

	c.Start()
	r.cron = c
	r.running = true

	r.logger.Info("model refresh scheduled", "interval", r.interval)

	if !r.cache.IsValid() {
		go r.RefreshNow(ctx)
	}
	return nil
}

// Stop cancels the schedule and waits for an in-flight sweep to finish.
func (r *Refresher) Stop() {
	r.mu.Lock()
	c := r.cron
	r.cron = nil
	r.running = false
	r.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
}

// RefreshNow runs one discovery sweep synchronously. On success the cache
// snapshot is replaced and persisted; on failure the cache is untouched.
func (r *Refresher) RefreshNow(ctx context.Context) {
	start := time.Now()
	entries, err := r.fetch(ctx)
	if err != nil {
		r.logger.Warn("model discovery sweep failed, keeping cached snapshot",
			"error", err,
			"elapsed", time.Since(start).Round(time.Millisecond),
		)
		return
	}

	r.cache.Replace(entries)
	r.logger.Info("model cache refreshed",
		"models", len(entries),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)

	if r.snapshotPath == "" {
		return
	}
	if err := r.cache.SaveSnapshot(r.snapshotPath); err != nil {
		r.logger.Warn("failed to persist model cache snapshot", "path", r.snapshotPath, "error", err)
	}
}
