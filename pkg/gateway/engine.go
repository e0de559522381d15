package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"meridian-hq/meridian/pkg/modelcache"
	"meridian-hq/meridian/pkg/providers"
	"meridian-hq/meridian/pkg/telemetry/metrics"
)

// Engine is the public face of the rotation and failover core. It walks
// eligible providers in priority order, dispatches through their
// adapters, and applies remediation between attempts. Every call returns
// a structured Outcome; the engine never returns an error for an
// upstream failure.
type Engine struct {
	registry  *Registry
	cache     *modelcache.Cache
	collector *metrics.Collector
	logger    *slog.Logger
}

// NewEngine creates an engine over the given registry and model cache.
// The collector may be nil to disable metrics.
func NewEngine(registry *Registry, cache *modelcache.Cache, collector *metrics.Collector) *Engine {
	return &Engine{
		registry:  registry,
		cache:     cache,
		collector: collector,
		logger:    slog.Default().With("component", "gateway.engine"),
	}
}

// Registry exposes the underlying registry for administrative surfaces
// (toggling, reconciliation, discovery).
func (e *Engine) Registry() *Registry {
	return e.registry
}

// CompleteOptions tunes one completion call.
type CompleteOptions struct {
	// Model overrides each provider's default model when non-empty.
	Model string

	// PreferredProvider is tried first when eligible.
	PreferredProvider string

	// ForceProvider restricts the call to PreferredProvider with no
	// fallback. Meaningless without PreferredProvider.
	ForceProvider bool
}

// defaultTestMessage is sent by TestProvider when the caller supplies
// no message.
const defaultTestMessage = "Hello! Reply with a short greeting."

// Complete runs one completion through the rotation engine. Candidates
// are tried strictly sequentially in priority order and the first
// success wins. A cancelled in-flight attempt is abandoned: it is
// recorded neither as a success nor as a failure.
func (e *Engine) Complete(ctx context.Context, messages []providers.Message, opts CompleteOptions) providers.Outcome {
	if len(messages) == 0 {
		return providers.Failure(providers.KindBadRequest, "no messages provided")
	}

	candidates, outcome := e.buildCandidates(opts)
	if outcome != nil {
		return *outcome
	}
	if len(candidates) == 0 {
		return providers.Failure(providers.KindNoProviders, "no providers available")
	}

	var failures []string
	var last providers.Outcome

	for i, name := range candidates {
		if i > 0 && e.collector != nil {
			e.collector.RecordFailover()
		}

		result, attempted := e.attempt(ctx, name, messages, opts.Model)
		if !attempted {
			continue
		}
		if ctx.Err() != nil && !result.Success {
			// Abandoned attempt: hand the cancellation outcome back
			// without recording it against the provider.
			return result
		}
		if result.Success {
			return result
		}

		last = result
		failures = append(failures, fmt.Sprintf("%s: %s (%s)", name, result.ErrorKind, result.ErrorMessage))
	}

	if len(failures) == 0 {
		return providers.Failure(providers.KindNoProviders, "no providers available")
	}

	// An operator override targets exactly one provider; hand its own
	// failure back instead of wrapping it as all_failed.
	if opts.ForceProvider && opts.PreferredProvider != "" {
		return last
	}

	out := providers.Failure(providers.KindAllFailed,
		fmt.Sprintf("all providers failed: %s", strings.Join(failures, "; ")))
	out.ProviderUsed = last.ProviderUsed
	out.StatusCode = last.StatusCode
	out.ResponseTime = last.ResponseTime
	return out
}

// buildCandidates resolves the candidate provider list for one call. A
// non-nil outcome is a terminal control failure (forced provider missing
// or flagged).
func (e *Engine) buildCandidates(opts CompleteOptions) ([]string, *providers.Outcome) {
	if opts.PreferredProvider != "" && opts.ForceProvider {
		if out := e.checkTargetable(opts.PreferredProvider); out != nil {
			return nil, out
		}
		return []string{opts.PreferredProvider}, nil
	}

	candidates := e.registry.Candidates()
	if opts.PreferredProvider != "" {
		for i, name := range candidates {
			if name == opts.PreferredProvider && i > 0 {
				candidates = append([]string{name}, append(append([]string(nil), candidates[:i]...), candidates[i+1:]...)...)
				break
			}
		}
	}
	return candidates, nil
}

// checkTargetable verifies a directly targeted provider exists, is
// enabled, and is not quarantined, without consuming a credential.
func (e *Engine) checkTargetable(name string) *providers.Outcome {
	switch err := e.registry.Probe(name).(type) {
	case nil:
		return nil
	case *FlaggedError:
		out := providers.Failure(providers.KindProviderFlagged, err.Error())
		out.ProviderUsed = name
		return &out
	default:
		switch err {
		case ErrProviderNotFound:
			out := providers.Failure(providers.KindProviderNotFound, fmt.Sprintf("provider %q is not configured", name))
			return &out
		default:
			out := providers.Failure(providers.KindProviderNotFound, fmt.Sprintf("provider %q is disabled", name))
			out.ProviderUsed = name
			return &out
		}
	}
}

// attempt runs one dispatch against one provider. attempted is false
// when no credential could be selected and the provider was skipped
// without recording anything.
func (e *Engine) attempt(ctx context.Context, name string, messages []providers.Message, model string) (providers.Outcome, bool) {
	att, err := e.registry.BeginAttempt(name)
	if err != nil {
		e.logger.Debug("skipping provider", "provider", name, "reason", err)
		return providers.Outcome{}, false
	}

	outcome := att.Adapter.Send(ctx, att.Config, att.Key, messages, model)

	if ctx.Err() != nil && !outcome.Success {
		return outcome, true
	}

	if outcome.Success {
		weight := e.registry.RecordSuccess(name, att.KeyIndex)
		if e.collector != nil {
			e.collector.RecordAttempt(name, true, outcome.ResponseTime)
			e.collector.SetProviderFlagged(name, false)
			if att.KeyIndex >= 0 {
				e.collector.SetCredentialWeight(name, att.KeyIndex, weight)
			}
		}
		e.logger.Info("completion served",
			"provider", name,
			"model", outcome.ModelUsed,
			"latency", outcome.ResponseTime,
		)
		return outcome, true
	}

	kind := refineKind(outcome)
	outcome.ErrorKind = kind

	action := e.registry.RecordFailure(name, att.KeyIndex, kind)
	if e.collector != nil {
		e.collector.RecordAttempt(name, false, outcome.ResponseTime)
		e.collector.RecordError(name, string(kind))
		if action.Flagged {
			e.collector.SetProviderFlagged(name, true)
		}
		if att.KeyIndex >= 0 {
			e.collector.SetCredentialWeight(name, att.KeyIndex, action.KeyWeight)
		}
	}

	e.logger.Warn("provider attempt failed",
		"provider", name,
		"error_kind", kind,
		"status", outcome.StatusCode,
		"rotated_key", action.RotatedKey,
		"flagged", action.Flagged,
		"error", outcome.ErrorMessage,
	)
	return outcome, true
}

// refineKind runs the classifier over failures the adapter could not
// fully classify. Transport-level and content-level kinds are already
// final; HTTP-level and unknown failures get the phrase and status scan.
func refineKind(o providers.Outcome) providers.ErrorKind {
	switch o.ErrorKind {
	case providers.KindHTTPError, providers.KindUnknown, "":
		return providers.Classify(o.ErrorMessage, o.StatusCode, o.RawResponse)
	}
	return o.ErrorKind
}

// TestProvider sends a connectivity probe to one named provider,
// bypassing priority order but still honoring its flag state.
func (e *Engine) TestProvider(ctx context.Context, name, message string) providers.Outcome {
	if out := e.checkTargetable(name); out != nil {
		return *out
	}
	if message == "" {
		message = defaultTestMessage
	}

	messages := []providers.Message{{Role: providers.RoleUser, Content: message}}
	result, attempted := e.attempt(ctx, name, messages, "")
	if !attempted {
		out := providers.Failure(providers.KindNoProviders, fmt.Sprintf("provider %q has no credential available", name))
		out.ProviderUsed = name
		return out
	}
	return result
}

// GetStatus returns the registry health snapshot.
func (e *Engine) GetStatus() Status {
	return e.registry.Status()
}

// GetKeyReport returns the per-credential usage report for one provider.
func (e *Engine) GetKeyReport(name string) (KeyReport, error) {
	return e.registry.KeyReport(name)
}

// FindModelProviders resolves a model name to the providers that serve
// it, using the strict-match model cache.
func (e *Engine) FindModelProviders(modelName string) []modelcache.Entry {
	return e.cache.FindProviders(modelName)
}
