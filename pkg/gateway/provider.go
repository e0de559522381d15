package gateway

import (
	"time"

	"meridian-hq/meridian/pkg/providers"
)

// Weight bounds and multipliers for the credential reputation signal.
// The weight is continuous: it decays toward minWeight on success and
// grows toward maxWeight on failure, and a rate-limited credential is
// pinned at maxWeight so it sorts last until its cooldown clears.
const (
	minWeight = 0.5
	maxWeight = 2.0

	successWeightFactor = 0.95
	failureWeightFactor = 1.1
)

// rateLimitCooldown is how long a rate-limited credential stays skipped
// after its last use.
const rateLimitCooldown = 60 * time.Second

// windowSpan is the sliding window used for per-minute load estimation.
const windowSpan = 60 * time.Second

// credential is one API key slot with its usage and reputation state.
// All fields are guarded by the registry mutex.
type credential struct {
	key string

	requests  int
	successes int
	failures  int

	weight      float64
	rateLimited bool

	// lastUsed is zero until the credential serves its first request.
	lastUsed time.Time

	// window holds the timestamps of recent requests, pruned lazily at
	// selection time.
	window []time.Time
}

func newCredential(key string) *credential {
	return &credential{key: key, weight: minWeight}
}

// recordUse counts one outgoing request against the credential.
func (c *credential) recordUse(now time.Time) {
	c.requests++
	c.lastUsed = now
	c.window = append(c.window, now)
}

// pruneWindow drops window entries older than windowSpan and returns the
// remaining count.
func (c *credential) pruneWindow(now time.Time) int {
	cutoff := now.Add(-windowSpan)
	keep := c.window[:0]
	for _, ts := range c.window {
		if ts.After(cutoff) {
			keep = append(keep, ts)
		}
	}
	c.window = keep
	return len(keep)
}

// successRate is the historical success ratio, or 1.0 for a credential
// that has never been used.
func (c *credential) successRate() float64 {
	if c.requests == 0 {
		return 1.0
	}
	return float64(c.successes) / float64(c.requests)
}

// Flag quarantines a provider until a deadline. A new flag overwrites the
// previous one; flags never stack.
type Flag struct {
	// Reason is the error kind (or "consecutive_failures") that caused
	// the flag.
	Reason string `json:"reason"`

	// FlaggedAt is when the flag was applied.
	FlaggedAt time.Time `json:"flagged_at"`

	// Until is when eligibility checks start clearing the flag.
	Until time.Time `json:"until"`
}

// FlagReasonConsecutive marks a flag applied by the consecutive-failure
// limit rather than a specific error kind.
const FlagReasonConsecutive = "consecutive_failures"

// provider is the runtime state for one configured upstream. All fields
// are guarded by the registry mutex.
type provider struct {
	name     string
	priority int
	enabled  bool

	// authRequired mirrors the configured auth_type; providers without an
	// auth requirement run with no credential slots.
	authRequired bool

	adapter providers.Adapter
	cfg     providers.Config

	// modelsEndpoint and authType are kept for model discovery.
	authType string

	creds []*credential

	// currentKey is the stored credential pointer. Selection may override
	// it per scoring; it tracks the slot used by the most recent attempt.
	currentKey int

	consecutiveFailures int

	requests  int
	successes int
	failures  int
	lastUsed  time.Time

	flag *Flag
}

// flaggedNow reports whether the provider is currently quarantined,
// lazily clearing an expired flag.
func (p *provider) flaggedNow(now time.Time) bool {
	if p.flag == nil {
		return false
	}
	if now.After(p.flag.Until) {
		p.flag = nil
		return false
	}
	return true
}

// setFlag applies or refreshes the provider's flag. Overwriting is
// idempotent; there is never more than one flag record.
func (p *provider) setFlag(reason string, now, until time.Time) {
	p.flag = &Flag{Reason: reason, FlaggedAt: now, Until: until}
}

// clearFlag removes the flag. Clearing an unflagged provider is a no-op.
func (p *provider) clearFlag() {
	p.flag = nil
}
