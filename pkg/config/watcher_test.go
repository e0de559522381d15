package config

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"
)

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, minimalConfig)

	var reloads atomic.Int32
	var lastProviders atomic.Int32
	w, err := NewWatcher(path, func(cfg *Config) {
		reloads.Add(1)
		lastProviders.Store(int32(len(cfg.Providers)))
	})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	w.debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	updated := minimalConfig + `
  beta:
    priority: 2
    format: openai
    endpoint: https://beta.example/v1/chat/completions
    auth_type: bearer
    api_keys: ["k3"]
`
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatalf("rewriting config: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for reloads.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("reload callback never fired")
		case <-time.After(10 * time.Millisecond):
		}
	}
	if lastProviders.Load() != 2 {
		t.Errorf("reloaded provider count = %d, want 2", lastProviders.Load())
	}
}

func TestWatcherKeepsOldConfigOnBrokenWrite(t *testing.T) {
	path := writeConfig(t, minimalConfig)

	var reloads atomic.Int32
	w, err := NewWatcher(path, func(cfg *Config) { reloads.Add(1) })
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	w.debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte(":::not yaml"), 0o644); err != nil {
		t.Fatalf("rewriting config: %v", err)
	}

	time.Sleep(300 * time.Millisecond)
	if reloads.Load() != 0 {
		t.Errorf("broken config triggered %d reloads, want 0", reloads.Load())
	}
}

func TestWatcherDoubleStart(t *testing.T) {
	path := writeConfig(t, minimalConfig)

	w, err := NewWatcher(path, func(cfg *Config) {})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	if err := w.Start(ctx); err == nil {
		t.Error("second Start should fail")
	}
}
