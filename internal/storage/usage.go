package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/opsdeck/opsdeck/internal/model"
)

// InsertUsage appends a usage record. agent_id is already stamped from the
// verified caller by the mutation gateway.
func (db *PostgresStore) InsertUsage(ctx context.Context, u model.UsageRecord) (model.UsageRecord, error) {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO ai_usage (id, agent_id, provider, model, tokens_in, tokens_out, total_tokens, cost_usd, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		u.ID, u.AgentID, u.Provider, u.Model, u.TokensIn, u.TokensOut, u.TotalTokens, u.CostUSD, u.CreatedAt,
	)
	if err != nil {
		return model.UsageRecord{}, fmt.Errorf("storage: insert usage: %w", err)
	}
	return u, nil
}
