package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"meridian-hq/meridian/pkg/modelcache"
)

// discoveryClient is shared across sweeps; per-target deadlines come
// from request contexts.
var discoveryClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConns:        16,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
	},
}

// modelListResponse covers the two list shapes the upstreams speak: an
// OpenAI-style data array of ids and a Gemini-style models array of
// names.
type modelListResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// DiscoverModels sweeps every enabled provider that exposes a models
// endpoint and returns the (provider, model) pairs found. Per-provider
// failures are logged and skipped; the sweep only errors when no target
// could be queried at all.
func DiscoverModels(ctx context.Context, registry *Registry) ([]modelcache.Entry, error) {
	targets := registry.DiscoveryTargets()
	if len(targets) == 0 {
		return nil, nil
	}

	logger := slog.Default().With("component", "gateway.discovery")

	var entries []modelcache.Entry
	succeeded := 0

	for _, t := range targets {
		models, err := listModels(ctx, t)
		if err != nil {
			logger.Warn("model listing failed", "provider", t.Name, "error", err)
			continue
		}
		succeeded++
		for _, m := range models {
			entries = append(entries, modelcache.Entry{Provider: t.Name, Model: m})
		}
		logger.Debug("models discovered", "provider", t.Name, "count", len(models))
	}

	if succeeded == 0 {
		return nil, fmt.Errorf("model discovery failed for all %d providers", len(targets))
	}
	return entries, nil
}

// listModels queries one provider's models endpoint.
func listModels(ctx context.Context, t DiscoveryTarget) ([]string, error) {
	endpoint := t.ModelsEndpoint
	if t.AuthType == "key_url" && t.Key != "" {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint += sep + "key=" + url.QueryEscape(t.Key)
	}

	timeout := t.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if t.AuthType == "bearer" && t.Key != "" {
		req.Header.Set("Authorization", "Bearer "+t.Key)
	}

	resp, err := discoveryClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP %d from models endpoint", resp.StatusCode)
	}

	var list modelListResponse
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("unparseable model list: %w", err)
	}

	var models []string
	for _, d := range list.Data {
		if d.ID != "" {
			models = append(models, d.ID)
		}
	}
	for _, m := range list.Models {
		// Gemini reports fully qualified names like "models/gemma".
		name := strings.TrimPrefix(m.Name, "models/")
		if name != "" {
			models = append(models, name)
		}
	}
	if len(models) == 0 {
		return nil, fmt.Errorf("model list response had no recognizable entries")
	}
	return models, nil
}
