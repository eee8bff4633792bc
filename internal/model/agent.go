// Package model defines the core entities and API request/response types.
package model

import (
	"time"

	"github.com/google/uuid"
)

// AgentStatus represents an agent's lifecycle status.
// The set is extensible; these are the values the dashboard knows about.
type AgentStatus string

const (
	AgentActive   AgentStatus = "active"
	AgentInactive AgentStatus = "inactive"
)

// Agent is an autonomous, non-human caller authenticated via a shared-secret
// key. Agents own jobs and emit events; they are created by a seed or admin
// process and never deleted in normal operation.
type Agent struct {
	ID        uuid.UUID   `json:"id"`
	Name      string      `json:"name"`
	Category  string      `json:"category"`
	Status    AgentStatus `json:"status"`
	LastSeen  *time.Time  `json:"last_seen,omitempty"`
	CreatedAt time.Time   `json:"created_at"`

	// KeyFingerprint is the stored fingerprint of the agent's shared-secret
	// key. Never serialized; compared for exact equality during verification.
	KeyFingerprint string `json:"-"`
}

// Online reports whether the agent counts as online on the dashboard.
func (a Agent) Online() bool {
	return a.Status == AgentActive
}
