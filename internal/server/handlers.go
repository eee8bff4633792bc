package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/opsdeck/opsdeck/api"
	"github.com/opsdeck/opsdeck/internal/auth"
	"github.com/opsdeck/opsdeck/internal/model"
	"github.com/opsdeck/opsdeck/internal/service/approvals"
	"github.com/opsdeck/opsdeck/internal/service/mutation"
	"github.com/opsdeck/opsdeck/internal/storage"
)

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	store       storage.Store
	verifier    *auth.AgentVerifier
	sessions    *auth.SessionManager
	mutationSvc *mutation.Service
	approvalSvc *approvals.Service
	templates   *pageSet
	logger      *slog.Logger

	version       string
	storageDriver string
	startedAt     time.Time

	maxRequestBodyBytes int64
}

// HandlersDeps holds everything needed to construct Handlers.
type HandlersDeps struct {
	Store         storage.Store
	Verifier      *auth.AgentVerifier
	Sessions      *auth.SessionManager
	MutationSvc   *mutation.Service
	ApprovalSvc   *approvals.Service
	Logger        *slog.Logger
	Version       string
	StorageDriver string

	MaxRequestBodyBytes int64
}

// NewHandlers creates the handler set. Templates are parsed here so a bad
// template fails construction rather than the first page view.
func NewHandlers(deps HandlersDeps) (*Handlers, error) {
	if deps.MaxRequestBodyBytes <= 0 {
		deps.MaxRequestBodyBytes = 1 << 20
	}
	templates, err := newPageSet()
	if err != nil {
		return nil, err
	}
	return &Handlers{
		store:               deps.Store,
		verifier:            deps.Verifier,
		sessions:            deps.Sessions,
		mutationSvc:         deps.MutationSvc,
		approvalSvc:         deps.ApprovalSvc,
		templates:           templates,
		logger:              deps.Logger,
		version:             deps.Version,
		storageDriver:       deps.StorageDriver,
		startedAt:           time.Now().UTC(),
		maxRequestBodyBytes: deps.MaxRequestBodyBytes,
	}, nil
}

// HandleHealth reports process liveness and storage reachability.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if err := h.store.Ping(r.Context()); err != nil {
		h.logger.Error("health check storage ping failed", "error", err)
		status = "degraded"
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, r, code, model.HealthResponse{
		Status:  status,
		Version: h.version,
		Storage: h.storageDriver,
		Uptime:  int64(time.Since(h.startedAt).Seconds()),
	})
}

// HandleOpenAPISpec serves the embedded OpenAPI document.
func (h *Handlers) HandleOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(api.OpenAPISpec)
}

// limitBody caps the request body size before decoding.
func (h *Handlers) limitBody(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxRequestBodyBytes)
}
