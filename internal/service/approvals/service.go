// Package approvals implements the approval decision flow.
//
// An approval is decided exactly once: pending moves to approved or
// changes_requested and never moves again. The decision and its cascade onto
// the linked job commit in one transaction, so a crash between the two can
// never leave a decided approval with an untouched job.
package approvals

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/opsdeck/opsdeck/internal/model"
	"github.com/opsdeck/opsdeck/internal/storage"
	"github.com/opsdeck/opsdeck/internal/telemetry"
)

// ErrNoteRequired reports a changes_requested decision submitted without a
// usable note.
var ErrNoteRequired = errors.New("approvals: a note is required when requesting changes")

// Service decides approvals on behalf of operators.
type Service struct {
	store  storage.Store
	logger *slog.Logger

	decisions metric.Int64Counter
}

// New creates an approvals Service.
func New(store storage.Store, logger *slog.Logger) *Service {
	meter := telemetry.Meter("opsdeck/approvals")
	decisions, _ := meter.Int64Counter("opsdeck.approvals.decided",
		metric.WithDescription("Approval decisions recorded"),
	)
	return &Service{store: store, logger: logger, decisions: decisions}
}

// Decide resolves a pending approval. Approving moves the linked job to
// in_progress; requesting changes moves it to blocked and requires a
// non-blank note. An approval without a linked job records only its own
// transition. Storage reports storage.ErrAlreadyDecided when the approval is
// no longer pending and storage.ErrNotFound when it does not exist.
func (s *Service) Decide(ctx context.Context, approvalID uuid.UUID, action model.ApprovalAction, note string, decidedBy uuid.UUID) (model.Approval, error) {
	note = strings.TrimSpace(note)

	var (
		status    model.ApprovalStatus
		jobStatus model.JobStatus
	)
	switch action {
	case model.ActionApprove:
		status = model.ApprovalApproved
		jobStatus = model.JobInProgress
	case model.ActionRequestChanges:
		if note == "" {
			return model.Approval{}, ErrNoteRequired
		}
		status = model.ApprovalChangesRequested
		jobStatus = model.JobBlocked
	default:
		return model.Approval{}, fmt.Errorf("approvals: unknown action %q", action)
	}

	var notePtr *string
	if note != "" {
		notePtr = &note
	}

	decided, err := s.store.DecideApproval(ctx, storage.DecideApprovalParams{
		ApprovalID: approvalID,
		Status:     status,
		Note:       notePtr,
		DecidedBy:  decidedBy,
		DecidedAt:  time.Now().UTC(),
		JobStatus:  &jobStatus,
		Audit: storage.MutationAudit{
			ActorType:    "operator",
			ActorID:      decidedBy.String(),
			Action:       string(action),
			ResourceType: "approval",
		},
	})
	if err != nil {
		return model.Approval{}, fmt.Errorf("approvals: decide: %w", err)
	}

	s.decisions.Add(ctx, 1, metric.WithAttributes(attribute.String("action", string(action))))
	s.logger.Info("approval decided",
		"approval_id", approvalID,
		"action", action,
		"decided_by", decidedBy,
		"job_id", decided.JobID)
	return decided, nil
}
