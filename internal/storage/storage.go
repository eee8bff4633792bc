// Package storage provides the persistence layer for the command center.
//
// Store is the capability interface the rest of the application depends on.
// Two implementations exist: a PostgreSQL store (pgx pool, row-level
// security backstop in the schema) and an embedded SQLite demo store for
// running without external infrastructure. The implementation is selected
// explicitly at startup via configuration, never inferred from environment
// presence.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/opsdeck/opsdeck/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("storage: not found")

// ErrAlreadyDecided is returned when deciding an approval that has already
// reached a terminal state.
var ErrAlreadyDecided = errors.New("storage: approval already decided")

// MutationAudit describes one server-stamped audit entry, written in the
// same transaction as the mutation it records.
type MutationAudit struct {
	ActorType    string // "agent" or "operator"
	ActorID      string
	Action       string
	ResourceType string
	ResourceID   string
	Data         map[string]any
}

// DecideApprovalParams carries everything needed to resolve a pending
// approval and cascade the decision onto its linked job atomically.
type DecideApprovalParams struct {
	ApprovalID uuid.UUID
	Status     model.ApprovalStatus
	Note       *string
	DecidedBy  uuid.UUID
	DecidedAt  time.Time
	// JobStatus is applied to the linked job, if any. Nil skips the cascade.
	JobStatus *model.JobStatus
	Audit     MutationAudit
}

// Store is the persistence capability used by services and handlers.
// All methods are safe for concurrent use; blocking calls honor ctx.
type Store interface {
	Ping(ctx context.Context) error
	Close(ctx context.Context) error

	// Agents.
	CreateAgent(ctx context.Context, a model.Agent) (model.Agent, error)
	GetAgent(ctx context.Context, id uuid.UUID) (model.Agent, error)
	// GetAgentByKeyFingerprint resolves a credential fingerprint to exactly
	// one agent. Zero matches return ErrNotFound.
	GetAgentByKeyFingerprint(ctx context.Context, fingerprint string) (model.Agent, error)
	ListAgents(ctx context.Context) ([]model.Agent, error)
	TouchAgentLastSeen(ctx context.Context, id uuid.UUID, at time.Time) error

	// Projects.
	CreateProject(ctx context.Context, p model.Project) (model.Project, error)
	ListProjects(ctx context.Context) ([]model.Project, error)

	// Jobs.
	CreateJob(ctx context.Context, j model.Job) (model.Job, error)
	GetJob(ctx context.Context, id uuid.UUID) (model.Job, error)
	ListJobs(ctx context.Context) ([]model.Job, error)
	// UpdateJobFields applies an already-authorized partial update together
	// with its audit entry in one transaction, stamping updated_at.
	UpdateJobFields(ctx context.Context, id uuid.UUID, upd model.UpdateJobRequest, updatedAt time.Time, audit MutationAudit) (model.Job, error)

	// Events (append-only).
	InsertEvent(ctx context.Context, e model.AgentEvent) (model.AgentEvent, error)
	ListRecentEvents(ctx context.Context, limit int) ([]model.AgentEvent, error)
	ListEventsByAgent(ctx context.Context, agentID uuid.UUID, limit int) ([]model.AgentEvent, error)

	// Usage (append-only).
	InsertUsage(ctx context.Context, u model.UsageRecord) (model.UsageRecord, error)

	// Approvals.
	CreateApproval(ctx context.Context, a model.Approval) (model.Approval, error)
	GetApproval(ctx context.Context, id uuid.UUID) (model.Approval, error)
	ListApprovals(ctx context.Context) ([]model.Approval, error)
	CountPendingApprovals(ctx context.Context) (int, error)
	// DecideApproval transitions a pending approval to a terminal state and
	// updates the linked job in a single transaction. Returns
	// ErrAlreadyDecided if the approval is no longer pending, ErrNotFound if
	// it does not exist.
	DecideApproval(ctx context.Context, p DecideApprovalParams) (model.Approval, error)

	// Operators.
	CreateOperator(ctx context.Context, op model.Operator) (model.Operator, error)
	GetOperatorByEmail(ctx context.Context, email string) (model.Operator, error)
}
