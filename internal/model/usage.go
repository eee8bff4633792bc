package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// UsageRecord is an immutable accounting fact: token consumption reported by
// an agent for one provider/model call. Append-only.
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

// ReportUsageRequest is the request body for POST /api/agent/usage.
// AgentID is optional; when present it must equal the authenticated caller.
type ReportUsageRequest struct {
	AgentID     *uuid.UUID `json:"agent_id,omitempty"`
	Provider    string     `json:"provider"`
	Model       string     `json:"model"`
	TokensIn    int64      `json:"tokens_in"`
	TokensOut   int64      `json:"tokens_out"`
	TotalTokens int64      `json:"total_tokens"`
	CostUSD     *float64   `json:"cost_usd,omitempty"`
}

// Validate checks the request independent of the caller's identity.
func (r ReportUsageRequest) Validate() error {
	if r.Provider == "" {
		return fmt.Errorf("provider is required")
	}
	if r.Model == "" {
		return fmt.Errorf("model is required")
	}
	if r.TokensIn < 0 || r.TokensOut < 0 || r.TotalTokens < 0 {
		return fmt.Errorf("token counts must be non-negative")
	}
	return nil
}
