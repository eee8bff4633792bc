package model

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents a job's lifecycle status. Extensible by convention;
// these are the values the approval workflow and dashboard produce.
type JobStatus string

const (
	JobQueued          JobStatus = "queued"
	JobInProgress      JobStatus = "in_progress"
	JobWaitingApproval JobStatus = "waiting_approval"
	JobBlocked         JobStatus = "blocked"
	JobCompleted       JobStatus = "completed"
)

// Job is a unit of work owned by exactly one agent. From the agent-facing
// surface only status and summary are mutable; everything else (title,
// ownership, project linkage) is fixed at creation.
type Job struct {
	ID           uuid.UUID  `json:"id"`
	Title        string     `json:"title"`
	Summary      string     `json:"summary"`
	Status       JobStatus  `json:"status"`
	OwnerAgentID uuid.UUID  `json:"owner_agent_id"`
	ProjectID    *uuid.UUID `json:"project_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// UpdateJobRequest is the tagged partial-update type for PATCH
// /api/agent/jobs/{id}. Only the allow-listed fields exist on it, so an
// update cannot touch anything else by construction. Nil means "leave as-is".
type UpdateJobRequest struct {
	Status  *JobStatus `json:"status,omitempty"`
	Summary *string    `json:"summary,omitempty"`
}

// Empty reports whether the request carries no changes at all.
func (r UpdateJobRequest) Empty() bool {
	return r.Status == nil && r.Summary == nil
}

// ParseJobUpdate decodes a job-update body, returning the request and the
// set of field names it carried. The whole field set is returned so the
// authorization layer can reject the entire update when any name falls
// outside the allow-list, before any subset is applied.
func ParseJobUpdate(data []byte) (UpdateJobRequest, []string, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return UpdateJobRequest{}, nil, fmt.Errorf("model: parse job update: %w", err)
	}

	fields := make([]string, 0, len(raw))
	for name := range raw {
		fields = append(fields, name)
	}
	sort.Strings(fields)

	var req UpdateJobRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return UpdateJobRequest{}, nil, fmt.Errorf("model: parse job update: %w", err)
	}
	return req, fields, nil
}
