package server

import (
	"encoding/json"
	"net/http"

	"meridian-hq/meridian/pkg/providers"
)

// errorBody is the JSON error envelope.
type errorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	var body errorBody
	body.Error.Message = message
	body.Error.Type = kind
	writeJSON(w, status, body)
}

// outcomeStatus maps a failed Outcome's error kind to an HTTP status.
// Upstream exhaustion is the gateway's fault surface, so it reports 502.
func outcomeStatus(kind providers.ErrorKind) int {
	switch kind {
	case providers.KindProviderNotFound:
		return http.StatusNotFound
	case providers.KindProviderFlagged:
		return http.StatusConflict
	case providers.KindBadRequest, providers.KindUnsupportedFormat:
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

// writeOutcomeError renders a failed Outcome as the JSON error envelope.
func writeOutcomeError(w http.ResponseWriter, outcome providers.Outcome) {
	writeError(w, outcomeStatus(outcome.ErrorKind), string(outcome.ErrorKind), outcome.ErrorMessage)
}
