package model

import (
	"time"

	"github.com/google/uuid"
)

// Project groups jobs into a unit of work.
type Project struct {
	ID           uuid.UUID  `json:"id"`
	Title        string     `json:"title"`
	Status       string     `json:"status"`
	OwnerAgentID *uuid.UUID `json:"owner_agent_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Operator is a human user of the command center, authenticated by password
// and a session cookie.
type Operator struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}
