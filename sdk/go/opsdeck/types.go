package opsdeck

import (
	"time"

	"github.com/google/uuid"
)

// Agent mirrors the server's agent resource as exposed to API consumers.
// Key material never crosses the wire.
type Agent struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	Category  string     `json:"category"`
	Status    string     `json:"status"`
	LastSeen  *time.Time `json:"last_seen,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Job is a unit of work owned by exactly one agent.
type Job struct {
	ID           uuid.UUID  `json:"id"`
	Title        string     `json:"title"`
	Summary      string     `json:"summary"`
	Status       string     `json:"status"`
	OwnerAgentID uuid.UUID  `json:"owner_agent_id"`
	ProjectID    *uuid.UUID `json:"project_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Event is a timeline entry reported by an agent.
type Event struct {
	ID        uuid.UUID      `json:"id"`
	AgentID   uuid.UUID      `json:"agent_id"`
	EventType string         `json:"event_type"`
	Payload   map[string]any `json:"payload"`
	ProjectID *uuid.UUID     `json:"project_id,omitempty"`
	JobID     *uuid.UUID     `json:"job_id,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// UsageRecord is a token-consumption sample reported by an agent.
type UsageRecord struct {
	ID          uuid.UUID `json:"id"`
	AgentID     uuid.UUID `json:"agent_id"`
	Provider    string    `json:"provider"`
	Model       string    `json:"model"`
	TokensIn    int64     `json:"tokens_in"`
	TokensOut   int64     `json:"tokens_out"`
	TotalTokens int64     `json:"total_tokens"`
	CostUSD     *float64  `json:"cost_usd,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ReportEventRequest is the body for reporting an event. AgentID is optional;
// when set it must match the authenticated agent.
type ReportEventRequest struct {
	AgentID   *uuid.UUID     `json:"agent_id,omitempty"`
	EventType string         `json:"event_type"`
	Payload   map[string]any `json:"payload,omitempty"`
	ProjectID *uuid.UUID     `json:"project_id,omitempty"`
	JobID     *uuid.UUID     `json:"job_id,omitempty"`
}

// ReportUsageRequest is the body for reporting model usage. TotalTokens may
// be left zero; the server derives it from TokensIn + TokensOut.
type ReportUsageRequest struct {
	AgentID     *uuid.UUID `json:"agent_id,omitempty"`
	Provider    string     `json:"provider"`
	Model       string     `json:"model"`
	TokensIn    int64      `json:"tokens_in"`
	TokensOut   int64      `json:"tokens_out"`
	TotalTokens int64      `json:"total_tokens,omitempty"`
	CostUSD     *float64   `json:"cost_usd,omitempty"`
}

// UpdateJobRequest carries the fields an agent may change on its own job.
// Only status and summary are accepted; anything else is rejected by the
// server with a 403 naming the offending field.
type UpdateJobRequest struct {
	Status  *string `json:"status,omitempty"`
	Summary *string `json:"summary,omitempty"`
}

// HealthResponse is the server's health report.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Storage string `json:"storage"`
}
