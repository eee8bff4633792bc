package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ApprovalStatus represents where an approval sits in its lifecycle.
// pending is the only non-terminal state.
type ApprovalStatus string

const (
	ApprovalPending          ApprovalStatus = "pending"
	ApprovalApproved         ApprovalStatus = "approved"
	ApprovalChangesRequested ApprovalStatus = "changes_requested"
)

// Approval is a human checkpoint gating an agent job's progress. It is
// created by an upstream workflow and transitions exactly once from pending
// to a terminal state.
type Approval struct {
	ID        uuid.UUID      `json:"id"`
	JobID     *uuid.UUID     `json:"job_id,omitempty"`
	AgentID   uuid.UUID      `json:"agent_id"`
	Summary   string         `json:"summary"`
	Status    ApprovalStatus `json:"status"`
	Note      *string        `json:"note,omitempty"`
	DecidedAt *time.Time     `json:"decided_at,omitempty"`
	DecidedBy *uuid.UUID     `json:"decided_by,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Decided reports whether the approval has reached a terminal state.
func (a Approval) Decided() bool {
	return a.Status != ApprovalPending
}

// ApprovalAction is an operator's decision on a pending approval.
type ApprovalAction string

const (
	ActionApprove        ApprovalAction = "approve"
	ActionRequestChanges ApprovalAction = "changes_requested"
)

// ParseApprovalAction validates the action value submitted by the decision form.
func ParseApprovalAction(s string) (ApprovalAction, error) {
	switch ApprovalAction(s) {
	case ActionApprove:
		return ActionApprove, nil
	case ActionRequestChanges:
		return ActionRequestChanges, nil
	default:
		return "", fmt.Errorf("model: unknown approval action %q", s)
	}
}
