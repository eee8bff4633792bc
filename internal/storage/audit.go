package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// insertMutationAuditTx writes an audit entry within an existing transaction
// so the mutation and its record commit or roll back together. All fields
// are server-stamped; nothing in the entry comes from a request body.
func insertMutationAuditTx(ctx context.Context, tx pgx.Tx, a MutationAudit) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO mutation_audit (id, actor_type, actor_id, action, resource_type, resource_id, data, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.New(), a.ActorType, a.ActorID, a.Action, a.ResourceType, a.ResourceID, a.Data, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage: insert mutation audit: %w", err)
	}
	return nil
}
