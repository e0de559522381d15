// Package server exposes the gateway over HTTP: an OpenAI-compatible
// completion endpoint, administrative provider controls, chat history,
// and health and metrics surfaces.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"meridian-hq/meridian/pkg/config"
	"meridian-hq/meridian/pkg/gateway"
	"meridian-hq/meridian/pkg/modelcache"
	"meridian-hq/meridian/pkg/store"
	"meridian-hq/meridian/pkg/telemetry/metrics"
)

// Server is the HTTP serving layer over the rotation engine.
type Server struct {
	cfg       config.ServerConfig
	engine    *gateway.Engine
	cache     *modelcache.Cache
	store     store.Store
	collector *metrics.Collector

	httpServer *http.Server
	logger     *slog.Logger

	mu      sync.Mutex
	running bool
}

// New creates the serving layer. The collector may be nil, which
// disables the /metrics endpoint; the store may be nil, which disables
// the chat history routes and transcript persistence.
func New(cfg config.ServerConfig, engine *gateway.Engine, cache *modelcache.Cache, st store.Store, collector *metrics.Collector) *Server {
	return &Server{
		cfg:       cfg,
		engine:    engine,
		cache:     cache,
		store:     st,
		collector: collector,
		logger:    slog.Default().With("component", "server"),
	}
}

// Routes builds the full handler chain. Exposed for tests.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/chat/completions", s.handleChatCompletions)
	mux.HandleFunc("GET /v1/models", s.handleListModels)

	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/providers", s.handleProviders)
	mux.HandleFunc("POST /api/providers/{name}/toggle", s.handleToggleProvider)
	mux.HandleFunc("GET /api/providers/{name}/keys", s.handleProviderKeys)
	mux.HandleFunc("POST /api/test", s.handleTestProvider)
	mux.HandleFunc("GET /api/models/{model}/providers", s.handleModelProviders)

	// Chat history routes exist only when a store is configured;
	// completion handling itself degrades to no persistence.
	if s.store != nil {
		mux.HandleFunc("GET /api/chats", s.handleListChats)
		mux.HandleFunc("POST /api/chats", s.handleCreateChat)
		mux.HandleFunc("GET /api/chats/{id}", s.handleGetChat)
		mux.HandleFunc("PUT /api/chats/{id}", s.handleRenameChat)
		mux.HandleFunc("GET /api/chats/{id}/messages", s.handleChatMessages)
		mux.HandleFunc("DELETE /api/chats/{id}", s.handleDeleteChat)
		mux.HandleFunc("GET /api/stats", s.handleStats)
	}

	mux.HandleFunc("GET /health", s.handleHealth)
	if s.collector != nil {
		mux.Handle("GET /metrics", s.collector.Handler())
	}

	return s.withRequestLog(mux)
}

// Start serves until the context is cancelled, then shuts down
// gracefully within the configured timeout.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.running = true

	s.httpServer = &http.Server{
		Addr:         s.cfg.ListenAddress,
		Handler:      s.Routes(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("gateway listening", "address", s.cfg.ListenAddress)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}
