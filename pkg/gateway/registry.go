package gateway

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"meridian-hq/meridian/pkg/config"
	"meridian-hq/meridian/pkg/providers"
)

// Flag cooldown durations per remediation rule.
const (
	// flagKeyExhausted quarantines a provider after a rate-limit or auth
	// failure on its current credential.
	flagKeyExhausted = time.Hour

	// flagQuota quarantines a provider after a generic quota failure.
	flagQuota = 30 * time.Minute

	// flagRotationDisabled is used for key-level failures when credential
	// rotation is turned off.
	flagRotationDisabled = 15 * time.Minute

	// flagOutage quarantines a provider after an availability failure;
	// credentials are assumed innocent.
	flagOutage = 10 * time.Minute

	// flagConsecutive quarantines a provider that hit the consecutive
	// failure limit, regardless of error kind.
	flagConsecutive = 30 * time.Minute
)

// ErrProviderNotFound is returned when a named provider is not configured.
var ErrProviderNotFound = errors.New("provider not found")

// ErrProviderDisabled is returned when a directly targeted provider is
// administratively disabled.
var ErrProviderDisabled = errors.New("provider is disabled")

// ErrNoCredential is returned when every credential slot of a provider is
// cooling down.
var ErrNoCredential = errors.New("no credential currently available")

// FlaggedError reports that a directly targeted provider is quarantined.
type FlaggedError struct {
	Provider string
	Reason   string
	Until    time.Time
}

func (e *FlaggedError) Error() string {
	return fmt.Sprintf("provider %q is flagged (%s) until %s", e.Provider, e.Reason, e.Until.Format(time.RFC3339))
}

// Registry owns the shared provider and credential runtime state. All
// reads and writes go through its mutex; the lock is never held while a
// network call is in flight.
type Registry struct {
	mu        sync.Mutex
	providers map[string]*provider
	settings  config.EngineConfig

	// lastSuccess is the provider that served the most recent successful
	// completion.
	lastSuccess string

	logger *slog.Logger

	// now is injected for deterministic cooldown and flag-expiry tests.
	now func() time.Time
}

// NewRegistry builds the runtime registry from configuration. Providers
// with an unknown format are rejected; providers requiring auth with no
// valid credentials were already pruned at load time.
func NewRegistry(cfg *config.Config) (*Registry, error) {
	r := &Registry{
		providers: make(map[string]*provider),
		settings:  cfg.Engine,
		logger:    slog.Default().With("component", "gateway.registry"),
		now:       time.Now,
	}

	for name, pc := range cfg.Providers {
		p, err := buildProvider(name, pc)
		if err != nil {
			return nil, err
		}
		r.providers[name] = p
	}

	return r, nil
}

func buildProvider(name string, pc config.ProviderConfig) (*provider, error) {
	adapter, err := providers.New(pc.Format)
	if err != nil {
		return nil, fmt.Errorf("provider %q: %w", name, err)
	}

	p := &provider{
		name:         name,
		priority:     pc.Priority,
		enabled:      pc.IsEnabled(),
		authRequired: pc.AuthType != "",
		authType:     pc.AuthType,
		adapter:      adapter,
		cfg: providers.Config{
			Name:           name,
			Format:         pc.Format,
			Endpoint:       pc.Endpoint,
			ModelsEndpoint: pc.ModelsEndpoint,
			Model:          pc.Model,
			AccountID:      pc.AccountID,
			Timeout:        pc.Timeout(),
			MaxTokens:      pc.MaxTokens,
			Temperature:    pc.Temperature,
		},
	}

	for _, key := range pc.ValidKeys() {
		p.creds = append(p.creds, newCredential(key))
	}
	return p, nil
}

// SetClock replaces the registry's time source. Intended for tests.
func (r *Registry) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// Candidates returns the names of all enabled, unflagged providers in
// ascending priority order. Expired flags are cleared as a side effect of
// the eligibility check.
func (r *Registry) Candidates() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.candidatesLocked()
}

func (r *Registry) candidatesLocked() []string {
	now := r.now()
	var out []*provider
	for _, p := range r.providers {
		if !p.enabled || p.flaggedNow(now) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].priority != out[j].priority {
			return out[i].priority < out[j].priority
		}
		return out[i].name < out[j].name
	})

	names := make([]string, len(out))
	for i, p := range out {
		names[i] = p.name
	}
	return names
}

// Attempt is the state handed to the engine for one dispatch: the
// adapter, its static configuration, and the selected credential.
type Attempt struct {
	Provider string
	Adapter  providers.Adapter
	Config   providers.Config

	// Key is the selected credential, empty for providers that need no
	// authentication.
	Key string

	// KeyIndex is the selected slot, -1 when the provider has no
	// credential slots.
	KeyIndex int
}

// BeginAttempt selects a credential for the named provider and records
// its usage in the same critical section, so two concurrent callers never
// both pick a momentarily idle slot on stale data.
func (r *Registry) BeginAttempt(name string) (Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.providers[name]
	if !ok {
		return Attempt{}, ErrProviderNotFound
	}
	if !p.enabled {
		return Attempt{}, ErrProviderDisabled
	}

	now := r.now()
	if p.flaggedNow(now) {
		return Attempt{}, &FlaggedError{Provider: name, Reason: p.flag.Reason, Until: p.flag.Until}
	}

	att := Attempt{Provider: name, Adapter: p.adapter, Config: p.cfg, KeyIndex: -1}

	if len(p.creds) > 0 {
		idx := p.selectCredential(now)
		if idx < 0 {
			return Attempt{}, ErrNoCredential
		}
		p.currentKey = idx
		p.creds[idx].recordUse(now)
		att.KeyIndex = idx
		att.Key = p.creds[idx].key
	}

	p.requests++
	p.lastUsed = now
	return att, nil
}

// Probe checks whether a provider can be targeted directly, without
// selecting a credential or recording usage. It returns nil,
// ErrProviderNotFound, ErrProviderDisabled, or a *FlaggedError.
func (r *Registry) Probe(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.providers[name]
	if !ok {
		return ErrProviderNotFound
	}
	if !p.enabled {
		return ErrProviderDisabled
	}
	if p.flaggedNow(r.now()) {
		return &FlaggedError{Provider: name, Reason: p.flag.Reason, Until: p.flag.Until}
	}
	return nil
}

// RecordSuccess applies the success transitions: the provider's flag (if
// any) clears, its consecutive-failure count resets, and the credential's
// weight decays. This is the only path that removes a flag early. The
// returned weight is the credential's new reputation, 0 when the provider
// holds no credential slots.
func (r *Registry) RecordSuccess(name string, keyIndex int) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.providers[name]
	if !ok {
		return 0
	}

	p.successes++
	p.consecutiveFailures = 0
	p.clearFlag()
	r.lastSuccess = name

	if keyIndex >= 0 && keyIndex < len(p.creds) {
		recordCredentialSuccess(p.creds[keyIndex])
		return p.creds[keyIndex].weight
	}
	return 0
}

// FailureAction reports what remediation a recorded failure triggered,
// for logging and metrics.
type FailureAction struct {
	// RotatedKey is true when the failure moved the provider off its
	// current credential.
	RotatedKey bool

	// Flagged is true when the provider is quarantined as a result.
	Flagged    bool
	FlagReason string
	FlagUntil  time.Time

	// KeyWeight is the failed credential's reputation after remediation,
	// 0 when the attempt used no credential slot.
	KeyWeight float64
}

// RecordFailure applies the remediation policy for a classified failure
// of the given kind against the provider and the credential slot that
// served the attempt.
func (r *Registry) RecordFailure(name string, keyIndex int, kind providers.ErrorKind) FailureAction {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.providers[name]
	if !ok {
		return FailureAction{}
	}

	now := r.now()
	p.failures++
	p.consecutiveFailures++

	var cred *credential
	if keyIndex >= 0 && keyIndex < len(p.creds) {
		cred = p.creds[keyIndex]
		recordCredentialFailure(cred)
	}

	var action FailureAction

	switch kind {
	case providers.KindRateLimit, providers.KindAuthError, providers.KindQuotaExceeded, providers.KindDailyLimit:
		if r.settings.KeyRotation() {
			if cred != nil {
				markRateLimited(cred)
				if next := p.selectCredential(now); next >= 0 && next != keyIndex {
					p.currentKey = next
					action.RotatedKey = true
				}
			}
			switch kind {
			case providers.KindRateLimit, providers.KindAuthError:
				r.flagLocked(p, string(kind), now, now.Add(flagKeyExhausted), &action)
			case providers.KindDailyLimit:
				r.flagLocked(p, string(kind), now, nextMidnight(now), &action)
			default:
				r.flagLocked(p, string(kind), now, now.Add(flagQuota), &action)
			}
		} else {
			r.flagLocked(p, string(kind), now, now.Add(flagRotationDisabled), &action)
		}

	case providers.KindServiceUnavailable, providers.KindServerError, providers.KindNetworkError:
		r.flagLocked(p, string(kind), now, now.Add(flagOutage), &action)

	case providers.KindUnknown:
		if r.settings.KeyRotation() && p.consecutiveFailures >= 2 && cred != nil && len(p.creds) > 1 {
			markRateLimited(cred)
			if next := p.selectCredential(now); next >= 0 && next != keyIndex {
				p.currentKey = next
				action.RotatedKey = true
			}
		}
	}

	// The consecutive-failure limit overrides any shorter flag just applied.
	if p.consecutiveFailures >= r.settings.ConsecutiveFailureLimit {
		r.flagLocked(p, FlagReasonConsecutive, now, now.Add(flagConsecutive), &action)
	}

	if cred != nil {
		action.KeyWeight = cred.weight
	}
	return action
}

func (r *Registry) flagLocked(p *provider, reason string, now, until time.Time, action *FailureAction) {
	p.setFlag(reason, now, until)
	action.Flagged = true
	action.FlagReason = reason
	action.FlagUntil = until
	r.logger.Warn("provider flagged",
		"provider", p.name,
		"reason", reason,
		"until", until.Format(time.RFC3339),
	)
}

// nextMidnight returns the first local midnight strictly after now.
func nextMidnight(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, now.Location())
}

// SetEnabled toggles a provider administratively and returns the new
// state.
func (r *Registry) SetEnabled(name string, enabled bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.providers[name]
	if !ok {
		return false, ErrProviderNotFound
	}
	p.enabled = enabled
	r.logger.Info("provider toggled", "provider", name, "enabled", enabled)
	return p.enabled, nil
}

// Toggle flips a provider's enabled state and returns the new state.
func (r *Registry) Toggle(name string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.providers[name]
	if !ok {
		return false, ErrProviderNotFound
	}
	p.enabled = !p.enabled
	r.logger.Info("provider toggled", "provider", name, "enabled", p.enabled)
	return p.enabled, nil
}

// FlaggedProvider is one entry of the quarantine list in a status
// snapshot.
type FlaggedProvider struct {
	Name   string    `json:"name"`
	Reason string    `json:"reason"`
	Until  time.Time `json:"until"`
}

// Status is a read-only snapshot of engine health for dashboards.
type Status struct {
	TotalProviders     int               `json:"total_providers"`
	AvailableProviders int               `json:"available_providers"`
	FlaggedProviders   int               `json:"flagged_providers"`
	CurrentProvider    string            `json:"current_provider,omitempty"`
	TopAvailable       []string          `json:"top_available"`
	Flagged            []FlaggedProvider `json:"flagged"`
}

// Status returns the health snapshot. TopAvailable lists up to five
// eligible providers in priority order.
func (r *Registry) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	candidates := r.candidatesLocked()
	now := r.now()

	st := Status{
		TotalProviders:     len(r.providers),
		AvailableProviders: len(candidates),
		CurrentProvider:    r.lastSuccess,
		TopAvailable:       candidates,
	}
	if len(st.TopAvailable) > 5 {
		st.TopAvailable = st.TopAvailable[:5]
	}

	for _, p := range r.providers {
		if p.flaggedNow(now) {
			st.Flagged = append(st.Flagged, FlaggedProvider{
				Name:   p.name,
				Reason: p.flag.Reason,
				Until:  p.flag.Until,
			})
		}
	}
	sort.Slice(st.Flagged, func(i, j int) bool { return st.Flagged[i].Name < st.Flagged[j].Name })
	st.FlaggedProviders = len(st.Flagged)
	return st
}

// ProviderDetail is the per-provider entry of the detailed listing.
type ProviderDetail struct {
	Name      string `json:"name"`
	Priority  int    `json:"priority"`
	Enabled   bool   `json:"enabled"`
	Format    string `json:"format"`
	Model     string `json:"model,omitempty"`
	Keys      int    `json:"keys"`
	Requests  int    `json:"requests"`
	Successes int    `json:"successes"`
	Failures  int    `json:"failures"`
	Flag      *Flag  `json:"flag,omitempty"`
}

// ProviderDetails returns per-provider configuration and runtime stats,
// sorted by priority then name.
func (r *Registry) ProviderDetails() []ProviderDetail {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	out := make([]ProviderDetail, 0, len(r.providers))
	for _, p := range r.providers {
		d := ProviderDetail{
			Name:      p.name,
			Priority:  p.priority,
			Enabled:   p.enabled,
			Format:    p.cfg.Format,
			Model:     p.cfg.Model,
			Keys:      len(p.creds),
			Requests:  p.requests,
			Successes: p.successes,
			Failures:  p.failures,
		}
		if p.flaggedNow(now) {
			flag := *p.flag
			d.Flag = &flag
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// CredentialReport is the usage snapshot of one credential slot.
type CredentialReport struct {
	Index              int       `json:"index"`
	Requests           int       `json:"requests"`
	Successes          int       `json:"successes"`
	Failures           int       `json:"failures"`
	RequestsThisMinute int       `json:"requests_this_minute"`
	RateLimited        bool      `json:"rate_limited"`
	Weight             float64   `json:"weight"`
	LastUsed           time.Time `json:"last_used,omitzero"`
	SuccessRate        float64   `json:"success_rate"`
}

// KeyReport is the per-credential usage report for one provider.
type KeyReport struct {
	Provider    string             `json:"provider"`
	Current     int                `json:"current"`
	Credentials []CredentialReport `json:"credentials"`
}

// KeyReport returns the credential usage report for the named provider.
func (r *Registry) KeyReport(name string) (KeyReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.providers[name]
	if !ok {
		return KeyReport{}, ErrProviderNotFound
	}

	now := r.now()
	report := KeyReport{Provider: name, Current: p.currentKey}
	for i, c := range p.creds {
		report.Credentials = append(report.Credentials, CredentialReport{
			Index:              i,
			Requests:           c.requests,
			Successes:          c.successes,
			Failures:           c.failures,
			RequestsThisMinute: c.pruneWindow(now),
			RateLimited:        c.rateLimited,
			Weight:             c.weight,
			LastUsed:           c.lastUsed,
			SuccessRate:        c.successRate(),
		})
	}
	return report, nil
}

// DiscoveryTarget is one provider the model discovery sweep should query.
type DiscoveryTarget struct {
	Name           string
	ModelsEndpoint string
	AuthType       string
	Key            string
	Timeout        time.Duration
}

// DiscoveryTargets lists enabled providers with a models endpoint. Flag
// state is ignored: listing models is independent of completion health.
func (r *Registry) DiscoveryTargets() []DiscoveryTarget {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []DiscoveryTarget
	for _, p := range r.providers {
		if !p.enabled || p.cfg.ModelsEndpoint == "" {
			continue
		}
		t := DiscoveryTarget{
			Name:           p.name,
			ModelsEndpoint: p.cfg.ModelsEndpoint,
			AuthType:       p.authType,
			Timeout:        p.cfg.Timeout,
		}
		if len(p.creds) > 0 {
			t.Key = p.creds[p.currentKey].key
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ApplyConfig reconciles the registry against a re-loaded configuration.
// Existing providers keep their runtime state (counters, weights, flags);
// their priority, enablement, endpoints, and credential set follow the
// new configuration. Providers absent from the new configuration are
// removed, new ones are added.
func (r *Registry) ApplyConfig(cfg *config.Config) error {
	rebuilt := make(map[string]*provider, len(cfg.Providers))
	for name, pc := range cfg.Providers {
		p, err := buildProvider(name, pc)
		if err != nil {
			return err
		}
		rebuilt[name] = p
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.settings = cfg.Engine

	for name, fresh := range rebuilt {
		old, ok := r.providers[name]
		if !ok {
			continue
		}

		fresh.requests = old.requests
		fresh.successes = old.successes
		fresh.failures = old.failures
		fresh.consecutiveFailures = old.consecutiveFailures
		fresh.lastUsed = old.lastUsed
		fresh.flag = old.flag

		// Carry credential state across by key value so a reordered key
		// list does not reset reputations.
		byKey := make(map[string]*credential, len(old.creds))
		for _, c := range old.creds {
			byKey[c.key] = c
		}
		for i, c := range fresh.creds {
			if prev, ok := byKey[c.key]; ok {
				fresh.creds[i] = prev
			}
		}
		if old.currentKey < len(fresh.creds) {
			fresh.currentKey = old.currentKey
		}
	}

	removed := 0
	for name := range r.providers {
		if _, ok := rebuilt[name]; !ok {
			removed++
		}
	}

	r.providers = rebuilt
	r.logger.Info("registry reconciled", "providers", len(rebuilt), "removed", removed)
	return nil
}
