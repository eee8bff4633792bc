// Package mutation is the single gateway for agent-initiated writes.
//
// Every mutation flows through here: the ownership guard runs before any
// write, server-owned fields (timestamps, actor identity) are stamped from
// the authenticated caller rather than the request body, and each write lands
// with its audit entry in the same transaction. HTTP handlers delegate to
// this service so no write path can skip the guard.
package mutation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/opsdeck/opsdeck/internal/authz"
	"github.com/opsdeck/opsdeck/internal/model"
	"github.com/opsdeck/opsdeck/internal/storage"
	"github.com/opsdeck/opsdeck/internal/telemetry"
)

// ForbiddenError reports a write denied by the ownership guard. The reason
// is safe to return to the caller.
type ForbiddenError struct {
	Reason string
}

func (e *ForbiddenError) Error() string {
	return "mutation: forbidden: " + e.Reason
}

// Service applies guarded agent writes.
type Service struct {
	store  storage.Store
	logger *slog.Logger

	denied metric.Int64Counter
	writes metric.Int64Counter
}

// New creates a mutation Service.
func New(store storage.Store, logger *slog.Logger) *Service {
	meter := telemetry.Meter("opsdeck/mutation")
	denied, _ := meter.Int64Counter("opsdeck.mutation.denied",
		metric.WithDescription("Agent writes denied by the ownership guard"),
	)
	writes, _ := meter.Int64Counter("opsdeck.mutation.applied",
		metric.WithDescription("Agent writes applied"),
	)
	return &Service{store: store, logger: logger, denied: denied, writes: writes}
}

// UpdateJob applies a partial job update on behalf of the authenticated
// agent. The field allow-list is checked before the job is loaded so that a
// request naming a forbidden field gets the same answer whether or not the
// job exists. A missing job surfaces as storage.ErrNotFound only to callers
// whose request was otherwise well-formed.
func (s *Service) UpdateJob(ctx context.Context, caller model.Agent, jobID uuid.UUID, upd model.UpdateJobRequest, fields []string) (model.Job, error) {
	if d := authz.CheckJobUpdateFields(fields); !d.Allowed {
		s.deny(ctx, "job_update", d.Reason)
		return model.Job{}, &ForbiddenError{Reason: d.Reason}
	}

	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return model.Job{}, fmt.Errorf("mutation: load job: %w", err)
	}

	if d := authz.CheckJobUpdate(caller.ID, nil, job.OwnerAgentID, fields); !d.Allowed {
		s.deny(ctx, "job_update", d.Reason)
		return model.Job{}, &ForbiddenError{Reason: d.Reason}
	}

	now := time.Now().UTC()
	updated, err := s.store.UpdateJobFields(ctx, jobID, upd, now, storage.MutationAudit{
		ActorType:    "agent",
		ActorID:      caller.ID.String(),
		Action:       "update",
		ResourceType: "job",
		Data:         auditJobData(upd),
	})
	if err != nil {
		return model.Job{}, fmt.Errorf("mutation: update job: %w", err)
	}

	s.writes.Add(ctx, 1, metric.WithAttributes(attribute.String("resource", "job")))
	s.logger.Info("job updated",
		"job_id", jobID,
		"agent_id", caller.ID,
		"fields", fields)
	return updated, nil
}

// RecordEvent appends an event to the activity log. A body that claims a
// different agent identity is rejected; otherwise the authenticated caller's
// identity is stamped regardless of what the body carried.
func (s *Service) RecordEvent(ctx context.Context, caller model.Agent, req model.ReportEventRequest) (model.AgentEvent, error) {
	if d := authz.CheckActorClaim(caller.ID, req.AgentID); !d.Allowed {
		s.deny(ctx, "event", d.Reason)
		return model.AgentEvent{}, &ForbiddenError{Reason: d.Reason}
	}

	event, err := s.store.InsertEvent(ctx, model.AgentEvent{
		AgentID:   caller.ID,
		EventType: req.EventType,
		Payload:   req.Payload,
		ProjectID: req.ProjectID,
		JobID:     req.JobID,
	})
	if err != nil {
		return model.AgentEvent{}, fmt.Errorf("mutation: record event: %w", err)
	}

	s.writes.Add(ctx, 1, metric.WithAttributes(attribute.String("resource", "event")))
	return event, nil
}

// RecordUsage appends a model-usage record for the authenticated caller.
func (s *Service) RecordUsage(ctx context.Context, caller model.Agent, req model.ReportUsageRequest) (model.UsageRecord, error) {
	if d := authz.CheckActorClaim(caller.ID, req.AgentID); !d.Allowed {
		s.deny(ctx, "usage", d.Reason)
		return model.UsageRecord{}, &ForbiddenError{Reason: d.Reason}
	}

	total := req.TotalTokens
	if total == 0 {
		total = req.TokensIn + req.TokensOut
	}
	record, err := s.store.InsertUsage(ctx, model.UsageRecord{
		AgentID:     caller.ID,
		Provider:    req.Provider,
		Model:       req.Model,
		TokensIn:    req.TokensIn,
		TokensOut:   req.TokensOut,
		TotalTokens: total,
		CostUSD:     req.CostUSD,
	})
	if err != nil {
		return model.UsageRecord{}, fmt.Errorf("mutation: record usage: %w", err)
	}

	s.writes.Add(ctx, 1, metric.WithAttributes(attribute.String("resource", "usage")))
	return record, nil
}

func (s *Service) deny(ctx context.Context, resource, reason string) {
	s.denied.Add(ctx, 1, metric.WithAttributes(attribute.String("resource", resource)))
	s.logger.Warn("write denied", "resource", resource, "reason", reason)
}

func auditJobData(upd model.UpdateJobRequest) map[string]any {
	data := map[string]any{}
	if upd.Status != nil {
		data["status"] = string(*upd.Status)
	}
	if upd.Summary != nil {
		data["summary"] = *upd.Summary
	}
	return data
}
