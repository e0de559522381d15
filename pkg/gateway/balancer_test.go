package gateway

import (
	"testing"
	"time"

	"meridian-hq/meridian/pkg/config"
)

func testProviderConfig(keys ...string) config.ProviderConfig {
	return config.ProviderConfig{
		Format:   "openai",
		Endpoint: "https://api.example.com/v1/chat/completions",
		Model:    "test-model",
		AuthType: "bearer",
		APIKeys:  keys,
	}
}

func newTestRegistry(t *testing.T, provs map[string]config.ProviderConfig) *Registry {
	t.Helper()
	cfg := &config.Config{Providers: provs}
	config.ApplyDefaults(cfg)
	r, err := NewRegistry(cfg)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return r
}

func TestSingleCredentialAlwaysSelected(t *testing.T) {
	r := newTestRegistry(t, map[string]config.ProviderConfig{
		"alpha": testProviderConfig("k0"),
	})

	for i := 0; i < 10; i++ {
		att, err := r.BeginAttempt("alpha")
		if err != nil {
			t.Fatalf("BeginAttempt #%d: %v", i, err)
		}
		if att.KeyIndex != 0 {
			t.Fatalf("BeginAttempt #%d selected slot %d, want 0", i, att.KeyIndex)
		}
		// Even a freshly rate-limited single credential stays selected.
		r.RecordFailure("alpha", att.KeyIndex, "rate_limit")
		r.mu.Lock()
		r.providers["alpha"].clearFlag()
		r.providers["alpha"].consecutiveFailures = 0
		r.mu.Unlock()
	}
}

func TestFailureWeightMonotonicallyIncreases(t *testing.T) {
	r := newTestRegistry(t, map[string]config.ProviderConfig{
		"alpha": testProviderConfig("k0", "k1"),
	})

	prev := 0.0
	for i := 0; i < 20; i++ {
		r.RecordFailure("alpha", 0, "bad_request")
		report, err := r.KeyReport("alpha")
		if err != nil {
			t.Fatalf("KeyReport: %v", err)
		}
		w := report.Credentials[0].Weight
		if w < prev {
			t.Fatalf("weight decreased after failure: %v -> %v", prev, w)
		}
		if w > maxWeight {
			t.Fatalf("weight exceeded cap: %v", w)
		}
		prev = w
	}
	if prev != maxWeight {
		t.Errorf("weight did not saturate at the cap: %v", prev)
	}
}

func TestSuccessWeightDecaysToFloor(t *testing.T) {
	r := newTestRegistry(t, map[string]config.ProviderConfig{
		"alpha": testProviderConfig("k0", "k1"),
	})

	for i := 0; i < 10; i++ {
		r.RecordFailure("alpha", 0, "bad_request")
	}
	for i := 0; i < 100; i++ {
		r.RecordSuccess("alpha", 0)
	}

	report, _ := r.KeyReport("alpha")
	if got := report.Credentials[0].Weight; got != minWeight {
		t.Errorf("weight after sustained success = %v, want %v", got, minWeight)
	}
}

func TestFreshlyRateLimitedSlotIsSkipped(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r := newTestRegistry(t, map[string]config.ProviderConfig{
		"alpha": testProviderConfig("k0", "k1", "k2"),
	})
	r.SetClock(func() time.Time { return now })

	// Use slot 0 once, then rate-limit it 10 seconds ago relative to "now".
	att, err := r.BeginAttempt("alpha")
	if err != nil {
		t.Fatalf("BeginAttempt: %v", err)
	}
	if att.KeyIndex != 0 {
		t.Fatalf("first selection picked slot %d, want 0", att.KeyIndex)
	}
	r.RecordFailure("alpha", 0, "rate_limit")
	r.mu.Lock()
	r.providers["alpha"].clearFlag()
	r.mu.Unlock()

	now = now.Add(10 * time.Second)
	for i := 0; i < 5; i++ {
		att, err := r.BeginAttempt("alpha")
		if err != nil {
			t.Fatalf("BeginAttempt: %v", err)
		}
		if att.KeyIndex == 0 {
			t.Fatalf("selection returned the cooling-down slot 0")
		}
		r.RecordSuccess("alpha", att.KeyIndex)
	}
}

func TestRateLimitCooldownClearsLazily(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r := newTestRegistry(t, map[string]config.ProviderConfig{
		"alpha": testProviderConfig("k0", "k1"),
	})
	r.SetClock(func() time.Time { return now })

	if _, err := r.BeginAttempt("alpha"); err != nil {
		t.Fatalf("BeginAttempt: %v", err)
	}
	r.RecordFailure("alpha", 0, "rate_limit")
	r.mu.Lock()
	r.providers["alpha"].clearFlag()
	r.mu.Unlock()

	report, _ := r.KeyReport("alpha")
	if !report.Credentials[0].RateLimited {
		t.Fatal("slot 0 not marked rate-limited")
	}
	if report.Credentials[0].Weight != maxWeight {
		t.Fatalf("rate-limited slot weight = %v, want %v", report.Credentials[0].Weight, maxWeight)
	}

	// After the cooldown the slot becomes selectable again and the
	// marker clears as a side effect of selection.
	now = now.Add(rateLimitCooldown + time.Second)

	// Load slot 1 heavily so slot 0 wins on score once eligible.
	r.mu.Lock()
	for i := 0; i < 30; i++ {
		r.providers["alpha"].creds[1].recordUse(now)
	}
	r.mu.Unlock()

	att, err := r.BeginAttempt("alpha")
	if err != nil {
		t.Fatalf("BeginAttempt after cooldown: %v", err)
	}
	if att.KeyIndex != 0 {
		t.Fatalf("cooled-down slot not reselected: got %d", att.KeyIndex)
	}
	report, _ = r.KeyReport("alpha")
	if report.Credentials[0].RateLimited {
		t.Error("rate-limit marker survived the cooldown")
	}
}

func TestUnusedCredentialPreferredOverLoaded(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r := newTestRegistry(t, map[string]config.ProviderConfig{
		"alpha": testProviderConfig("k0", "k1"),
	})
	r.SetClock(func() time.Time { return now })

	// Drive slot 0 through several requests in the current window.
	for i := 0; i < 5; i++ {
		att, _ := r.BeginAttempt("alpha")
		r.RecordSuccess("alpha", att.KeyIndex)
		if att.KeyIndex == 0 {
			continue
		}
		// Once the balancer moves to slot 1 the test's premise holds.
		return
	}
	t.Error("balancer never moved off the loaded slot")
}

func TestCredentialScoreFloor(t *testing.T) {
	c := newCredential("k")
	now := time.Now()
	// No load, full recency and success bonuses: raw score would be
	// negative, so the floor applies.
	if got := credentialScore(c, now); got != 0 {
		t.Errorf("credentialScore(unused) = %v, want 0", got)
	}
}
