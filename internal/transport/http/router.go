// Package httptransport is the local status surface of a running portal:
// health, session state, logout and metrics.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	jwttoken "portal/internal/jwt_token"
	"portal/internal/platform/metrics"
	"portal/internal/platform/middleware"
	"portal/internal/session/models"
)

// SessionService is what the handlers need from the session manager.
type SessionService interface {
	Snapshot() models.Snapshot
	Claims() (*jwttoken.Claims, bool)
	Logout(ctx context.Context) error
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Handler serves the status endpoints.
type Handler struct {
	session SessionService
	logger  *slog.Logger
	checks  map[string]HealthCheck
}

type Option func(*Handler)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithHealthCheck adds a named dependency check to /healthz.
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(h *Handler) {
		if check != nil {
			h.checks[name] = check
		}
	}
}

func New(session SessionService, opts ...Option) *Handler {
	h := &Handler{
		session: session,
		logger:  slog.Default(),
		checks:  make(map[string]HealthCheck),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// NewRouter wires every endpoint behind the shared middleware stack.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(h.logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(h.logger))

	r.Get("/healthz", h.handleHealth)
	r.Handle("/metrics", metrics.Handler())
	h.Register(r)
	return r
}

// Register mounts the session routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Get("/session", h.handleSession)
	r.Post("/session/logout", h.handleLogout)
}

// NewServer builds the HTTP server for addr.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
