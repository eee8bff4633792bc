package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/opsdeck/opsdeck/internal/ctxutil"
	"github.com/opsdeck/opsdeck/internal/model"
	"github.com/opsdeck/opsdeck/internal/service/mutation"
	"github.com/opsdeck/opsdeck/internal/storage"
)

// HandleListAgents returns the caller's own agent row as a one-element list.
// The scope is enforced in the lookup itself, not by filtering a broader
// result; key fingerprints never leave the model layer.
func (h *Handlers) HandleListAgents(w http.ResponseWriter, r *http.Request) {
	caller, ok := ctxutil.AgentFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "no agent in context")
		return
	}

	agent, err := h.store.GetAgent(r.Context(), caller.ID)
	if err != nil {
		h.logger.Error("agent lookup failed", "error", err, "agent_id", caller.ID)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to load agent")
		return
	}
	writeJSON(w, r, http.StatusOK, []model.Agent{agent})
}

// HandleReportEvent appends an event for the authenticated agent.
func (h *Handlers) HandleReportEvent(w http.ResponseWriter, r *http.Request) {
	caller, ok := ctxutil.AgentFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "no agent in context")
		return
	}

	h.limitBody(w, r)
	var req model.ReportEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	event, err := h.mutationSvc.RecordEvent(r.Context(), caller, req)
	if err != nil {
		h.writeMutationError(w, r, err, "record event")
		return
	}
	writeJSON(w, r, http.StatusCreated, event)
}

// HandleReportUsage appends a usage record for the authenticated agent.
func (h *Handlers) HandleReportUsage(w http.ResponseWriter, r *http.Request) {
	caller, ok := ctxutil.AgentFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "no agent in context")
		return
	}

	h.limitBody(w, r)
	var req model.ReportUsageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	record, err := h.mutationSvc.RecordUsage(r.Context(), caller, req)
	if err != nil {
		h.writeMutationError(w, r, err, "record usage")
		return
	}
	writeJSON(w, r, http.StatusCreated, record)
}

// HandleUpdateJob applies a partial update to a job owned by the caller.
// The raw body is parsed once into the tagged update type plus the set of
// field names it carried, so the guard can reject by name.
func (h *Handlers) HandleUpdateJob(w http.ResponseWriter, r *http.Request) {
	caller, ok := ctxutil.AgentFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "no agent in context")
		return
	}

	jobID, err := uuid.Parse(r.PathValue("job_id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid job id")
		return
	}

	h.limitBody(w, r)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "failed to read request body")
		return
	}

	upd, fields, err := model.ParseJobUpdate(body)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body")
		return
	}
	if len(fields) == 0 {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "request body carries no fields")
		return
	}

	job, err := h.mutationSvc.UpdateJob(r.Context(), caller, jobID, upd, fields)
	if err != nil {
		h.writeMutationError(w, r, err, "update job")
		return
	}
	writeJSON(w, r, http.StatusOK, job)
}

// writeMutationError maps service errors onto HTTP statuses. Guard denials
// are 403 with the guard's reason; a missing resource is 404; everything
// else is an opaque 500.
func (h *Handlers) writeMutationError(w http.ResponseWriter, r *http.Request, err error, op string) {
	var forbidden *mutation.ForbiddenError
	switch {
	case errors.As(err, &forbidden):
		writeError(w, r, http.StatusForbidden, model.ErrCodeForbidden, forbidden.Reason)
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "resource not found")
	default:
		h.logger.Error(op+" failed", "error", err,
			"request_id", ctxutil.RequestIDFromContext(r.Context()))
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "internal server error")
	}
}
