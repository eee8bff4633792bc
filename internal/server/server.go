package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/opsdeck/opsdeck/internal/auth"
	"github.com/opsdeck/opsdeck/internal/ctxutil"
	"github.com/opsdeck/opsdeck/internal/ratelimit"
	"github.com/opsdeck/opsdeck/internal/service/approvals"
	"github.com/opsdeck/opsdeck/internal/service/mutation"
	"github.com/opsdeck/opsdeck/internal/storage"
)

// Server is the OpsDeck HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a Server.
type ServerConfig struct {
	// Required dependencies.
	Store       storage.Store
	Verifier    *auth.AgentVerifier
	Sessions    *auth.SessionManager
	MutationSvc *mutation.Service
	ApprovalSvc *approvals.Service
	Logger      *slog.Logger

	// Optional; nil disables rate limiting.
	Limiter ratelimit.Limiter

	// HTTP server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	StorageDriver       string
	MaxRequestBodyBytes int64
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) (*Server, error) {
	h, err := NewHandlers(HandlersDeps{
		Store:               cfg.Store,
		Verifier:            cfg.Verifier,
		Sessions:            cfg.Sessions,
		MutationSvc:         cfg.MutationSvc,
		ApprovalSvc:         cfg.ApprovalSvc,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		StorageDriver:       cfg.StorageDriver,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}

	reqIDFunc := func(r *http.Request) string {
		return ctxutil.RequestIDFromContext(r.Context())
	}

	// Agent API requests are limited per authenticated agent; the login form
	// is limited per IP so password guessing cannot run unthrottled.
	agentRL := ratelimit.Middleware(cfg.Limiter, agentKeyFunc, reqIDFunc)
	loginRL := ratelimit.Middleware(cfg.Limiter, ratelimit.IPKeyFunc, reqIDFunc)

	agentAuth := func(next http.Handler) http.Handler {
		return agentAuthMiddleware(h, agentRL(next))
	}
	session := func(next http.Handler) http.Handler {
		return sessionMiddleware(cfg.Sessions, next)
	}

	mux := http.NewServeMux()

	// Agent-facing JSON API. Authentication first, then the per-agent limit.
	mux.Handle("GET /api/agent/agents", agentAuth(http.HandlerFunc(h.HandleListAgents)))
	mux.Handle("POST /api/agent/events", agentAuth(http.HandlerFunc(h.HandleReportEvent)))
	mux.Handle("POST /api/agent/usage", agentAuth(http.HandlerFunc(h.HandleReportUsage)))
	mux.Handle("PATCH /api/agent/jobs/{job_id}", agentAuth(http.HandlerFunc(h.HandleUpdateJob)))

	// Operator login (no session required).
	mux.Handle("GET /login", http.HandlerFunc(h.HandleLoginPage))
	mux.Handle("POST /login", loginRL(http.HandlerFunc(h.HandleLogin)))
	mux.Handle("POST /logout", http.HandlerFunc(h.HandleLogout))

	// Operator pages (session required).
	mux.Handle("GET /{$}", session(http.HandlerFunc(h.HandleDashboard)))
	mux.Handle("GET /agents", session(http.HandlerFunc(h.HandleAgentsPage)))
	mux.Handle("GET /agents/{agent_id}", session(http.HandlerFunc(h.HandleAgentDetailPage)))
	mux.Handle("GET /projects", session(http.HandlerFunc(h.HandleProjectsPage)))
	mux.Handle("GET /approvals", session(http.HandlerFunc(h.HandleApprovalsPage)))
	mux.Handle("POST /approvals/{approval_id}/decision", session(http.HandlerFunc(h.HandleApprovalDecision)))

	// Health and API docs (no auth, no rate limit).
	mux.HandleFunc("GET /healthz", h.HandleHealth)
	mux.HandleFunc("GET /api/openapi.yaml", h.HandleOpenAPISpec)

	// Middleware chain (outermost executes first):
	// request ID → security headers → tracing → logging → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
	}, nil
}

// agentKeyFunc extracts the authenticated agent ID for rate limiting.
func agentKeyFunc(r *http.Request) string {
	if agent, ok := ctxutil.AgentFromContext(r.Context()); ok {
		return "agent:" + agent.ID.String()
	}
	return ""
}

// Handlers returns the underlying Handlers for access in composition code.
func (s *Server) Handlers() *Handlers {
	return s.handlers
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
