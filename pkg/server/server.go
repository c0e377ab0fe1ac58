// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package server exposes the chat service over HTTP.
//
// Routes:
//
//	GET  /healthz
//	GET  /metrics
//	POST /v1/auth/login
//	POST /v1/threads
//	GET  /v1/threads
//	GET  /v1/threads/{id}/messages
//	POST /v1/threads/{id}/messages        (SSE, or JSON with ?stream=false)
//
// Everything under /v1 except login requires authentication when an
// Authenticator is configured.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/auth"
	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/chat"
	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/config"
	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/observability"
)

// Login verifies directory credentials.
type Login interface {
	Login(ctx context.Context, username, password string) (*auth.Session, error)
}

// Server is the InsightBot HTTP server.
type Server struct {
	cfg  config.ServerConfig
	chat *chat.Service

	authenticator *auth.Authenticator
	login         Login
	observability *observability.Manager

	server *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithAuthenticator protects /v1 with a.
func WithAuthenticator(a *auth.Authenticator) Option {
	return func(s *Server) {
		s.authenticator = a
	}
}

// WithLogin enables POST /v1/auth/login.
func WithLogin(l Login) Option {
	return func(s *Server) {
		s.login = l
	}
}

// WithObservability sets the tracing and metrics source.
func WithObservability(obs *observability.Manager) Option {
	return func(s *Server) {
		s.observability = obs
	}
}

// New creates a server for the chat service.
func New(cfg config.ServerConfig, svc *chat.Service, opts ...Option) *Server {
	cfg.SetDefaults()
	s := &Server{cfg: cfg, chat: svc}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Order: observability -> logging -> cors -> routes
	r.Use(s.observabilityMiddleware())
	r.Use(loggingMiddleware)
	r.Use(corsMiddleware(s.cfg.CORSOrigins))

	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", s.metricsHandler().ServeHTTP)

	r.Route("/v1", func(r chi.Router) {
		if s.login != nil {
			r.Post("/auth/login", s.handleLogin)
		}

		r.Group(func(r chi.Router) {
			if s.authenticator != nil {
				r.Use(s.authenticator.Middleware)
			}
			r.Post("/threads", s.handleCreateThread)
			r.Get("/threads", s.handleListThreads)
			r.Get("/threads/{id}/messages", s.handleHistory)
			r.Post("/threads/{id}/messages", s.handleMessage)
		})
	})

	return r
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.cfg.Address(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		IdleTimeout:       120 * time.Second,
	}

	slog.Info("HTTP server starting", "address", s.cfg.Address(), "auth", s.authenticator != nil)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown stops accepting requests and waits for running ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	slog.Info("HTTP server shutting down")
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP shutdown error: %w", err)
	}
	return nil
}

// Address returns the listen address.
func (s *Server) Address() string {
	return s.cfg.Address()
}

func (s *Server) observabilityMiddleware() func(http.Handler) http.Handler {
	if s.observability != nil {
		return observability.HTTPMiddleware(s.observability.GetTracer("insightbot/server"), s.observability.GetMetrics())
	}
	return observability.HTTPMiddleware(observability.GetTracer("insightbot/server"), observability.GetGlobalMetrics())
}

func (s *Server) metricsHandler() http.Handler {
	if s.observability != nil {
		return s.observability.MetricsHandler()
	}
	return observability.GetGlobalMetrics().Handler()
}

// loggingMiddleware logs requests. It does not wrap the ResponseWriter so
// http.Flusher keeps working for SSE.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}
