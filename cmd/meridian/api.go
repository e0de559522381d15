package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"meridian-hq/meridian/pkg/config"
)

// apiAddress resolves the running gateway's address: an explicit flag
// wins, otherwise the config file's listen address is used.
func apiAddress(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return "", fmt.Errorf("failed to load config: %w", err)
	}
	return cfg.Server.ListenAddress, nil
}

// apiGet fetches a JSON document from the running gateway.
func apiGet(address, path string, out any) error {
	url := "http://" + strings.TrimPrefix(address, "http://") + path
	client := &http.Client{Timeout: 10 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("is the gateway running? %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("gateway returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
