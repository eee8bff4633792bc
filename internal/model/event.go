package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MaxEventTypeLen caps the free-form event type tag so a single caller
// cannot fill a TEXT column with arbitrary garbage.
const MaxEventTypeLen = 200

// AgentEvent is an immutable fact emitted by an agent. Append-only; the
// agent_id is always the authenticated caller, never client-supplied.
type AgentEvent struct {
	ID        uuid.UUID      `json:"id"`
	AgentID   uuid.UUID      `json:"agent_id"`
	EventType string         `json:"event_type"`
	Payload   map[string]any `json:"payload"`
	ProjectID *uuid.UUID     `json:"project_id,omitempty"`
	JobID     *uuid.UUID     `json:"job_id,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// ReportEventRequest is the request body for POST /api/agent/events.
// AgentID is optional; when present it must equal the authenticated caller.
type ReportEventRequest struct {
	AgentID   *uuid.UUID     `json:"agent_id,omitempty"`
	EventType string         `json:"event_type"`
	Payload   map[string]any `json:"payload,omitempty"`
	ProjectID *uuid.UUID     `json:"project_id,omitempty"`
	JobID     *uuid.UUID     `json:"job_id,omitempty"`
}

// Validate checks the request independent of the caller's identity.
func (r ReportEventRequest) Validate() error {
	if r.EventType == "" {
		return fmt.Errorf("event_type is required")
	}
	if len(r.EventType) > MaxEventTypeLen {
		return fmt.Errorf("event_type exceeds maximum length of %d characters", MaxEventTypeLen)
	}
	return nil
}
