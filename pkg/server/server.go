// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package server exposes the dispatcher over an HTTP JSON API and hosts
// the websocket endpoint database agents dial into.
package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/spindle/pkg/agenthub"
	"github.com/teradata-labs/spindle/pkg/dispatch"
)

// CORSConfig holds CORS configuration
type CORSConfig struct {
	Enabled          bool
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           int
}

// DefaultCORSConfig returns a permissive CORS configuration
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		Enabled:          true,
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Content-Length", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           86400, // 24 hours
	}
}

// Config holds configuration for the HTTP server.
type Config struct {
	// Addr is the listen address, e.g. "0.0.0.0:5080". Required.
	Addr string

	// Dispatcher handles queries. Required.
	Dispatcher *dispatch.Dispatcher

	// Hub accepts agent websocket sessions. Required.
	Hub *agenthub.Hub

	// CORS configuration. Zero value disables CORS headers.
	CORS CORSConfig

	// Logger for request handling.
	Logger *zap.Logger
}

// Server is the HTTP front of the query service.
type Server struct {
	dispatcher *dispatch.Dispatcher
	hub        *agenthub.Hub
	corsConfig CORSConfig
	logger     *zap.Logger
	httpServer *http.Server
}

// NewServer creates the HTTP server.
func NewServer(cfg Config) (*Server, error) {
	switch {
	case cfg.Addr == "":
		return nil, fmt.Errorf("Addr is required")
	case cfg.Dispatcher == nil:
		return nil, fmt.Errorf("Dispatcher is required")
	case cfg.Hub == nil:
		return nil, fmt.Errorf("Hub is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	s := &Server{
		dispatcher: cfg.Dispatcher,
		hub:        cfg.Hub,
		corsConfig: cfg.CORS,
		logger:     cfg.Logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /v1/query", s.handleQuery)
	mux.HandleFunc("GET /v1/connections", s.handleConnections)
	mux.HandleFunc("GET /v1/connections/{ref}/status", s.handleConnectionStatus)
	mux.HandleFunc("DELETE /v1/files/{ref}", s.handleFileRelease)
	mux.Handle("GET /ws/agent", cfg.Hub)

	var handler http.Handler = mux
	if cfg.CORS.Enabled {
		handler = s.corsMiddleware(mux)
	}

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // long-running queries and websocket upgrades
		IdleTimeout:  120 * time.Second,
	}
	return s, nil
}

// Start serves until the listener fails or Stop is called.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the configured handler for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// corsMiddleware adds CORS headers to HTTP responses
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		allowedOrigin := s.getAllowedOrigin(origin)
		if allowedOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
		}
		if s.corsConfig.AllowCredentials {
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		if len(s.corsConfig.AllowedMethods) > 0 {
			w.Header().Set("Access-Control-Allow-Methods", strings.Join(s.corsConfig.AllowedMethods, ", "))
		}
		if len(s.corsConfig.AllowedHeaders) > 0 {
			w.Header().Set("Access-Control-Allow-Headers", strings.Join(s.corsConfig.AllowedHeaders, ", "))
		}
		if len(s.corsConfig.ExposedHeaders) > 0 {
			w.Header().Set("Access-Control-Expose-Headers", strings.Join(s.corsConfig.ExposedHeaders, ", "))
		}
		if s.corsConfig.MaxAge > 0 {
			w.Header().Set("Access-Control-Max-Age", fmt.Sprintf("%d", s.corsConfig.MaxAge))
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// getAllowedOrigin returns the origin header value to emit, empty when the
// request origin is not allowed.
func (s *Server) getAllowedOrigin(origin string) string {
	for _, allowed := range s.corsConfig.AllowedOrigins {
		if allowed == "*" {
			return "*"
		}
		if allowed == origin {
			return origin
		}
	}
	return ""
}
