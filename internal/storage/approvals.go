package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/opsdeck/opsdeck/internal/model"
)

const approvalColumns = `id, job_id, agent_id, summary, status, note, decided_at, decided_by, created_at`

// CreateApproval inserts a new approval request.
func (db *PostgresStore) CreateApproval(ctx context.Context, a model.Approval) (model.Approval, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if a.Status == "" {
		a.Status = model.ApprovalPending
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO approvals (id, job_id, agent_id, summary, status, note, decided_at, decided_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.JobID, a.AgentID, a.Summary, string(a.Status), a.Note, a.DecidedAt, a.DecidedBy, a.CreatedAt,
	)
	if err != nil {
		return model.Approval{}, fmt.Errorf("storage: create approval: %w", err)
	}
	return a, nil
}

// GetApproval retrieves an approval by ID.
func (db *PostgresStore) GetApproval(ctx context.Context, id uuid.UUID) (model.Approval, error) {
	row := db.pool.QueryRow(ctx, `SELECT `+approvalColumns+` FROM approvals WHERE id = $1`, id)
	return scanApproval(row)
}

// ListApprovals returns all approvals, pending first, newest within each group.
func (db *PostgresStore) ListApprovals(ctx context.Context) ([]model.Approval, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+approvalColumns+` FROM approvals
		 ORDER BY (status = 'pending') DESC, created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("storage: list approvals: %w", err)
	}
	defer rows.Close()

	var approvals []model.Approval
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		approvals = append(approvals, a)
	}
	return approvals, rows.Err()
}

// CountPendingApprovals returns the number of approvals awaiting a decision.
func (db *PostgresStore) CountPendingApprovals(ctx context.Context) (int, error) {
	var n int
	err := db.pool.QueryRow(ctx,
		`SELECT count(*) FROM approvals WHERE status = 'pending'`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("storage: count pending approvals: %w", err)
	}
	return n, nil
}

// DecideApproval resolves a pending approval and cascades the decision onto
// its linked job in a single transaction. The WHERE status = 'pending'
// predicate makes the transition single-shot: a second decision (or a
// concurrent one losing the race) affects zero rows and is reported as
// ErrAlreadyDecided rather than silently re-applied.
func (db *PostgresStore) DecideApproval(ctx context.Context, p DecideApprovalParams) (model.Approval, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return model.Approval{}, fmt.Errorf("storage: begin decide approval tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx,
		`UPDATE approvals
		 SET status = $1, note = $2, decided_at = $3, decided_by = $4
		 WHERE id = $5 AND status = 'pending'
		 RETURNING `+approvalColumns,
		string(p.Status), p.Note, p.DecidedAt, p.DecidedBy, p.ApprovalID,
	)
	a, err := scanApproval(row)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Zero rows: either the approval is already terminal or it does
			// not exist. Distinguish the two for the caller.
			var exists bool
			if checkErr := db.pool.QueryRow(ctx,
				`SELECT EXISTS (SELECT FROM approvals WHERE id = $1)`, p.ApprovalID,
			).Scan(&exists); checkErr != nil {
				return model.Approval{}, fmt.Errorf("storage: decide approval existence check: %w", checkErr)
			}
			if exists {
				return model.Approval{}, ErrAlreadyDecided
			}
			return model.Approval{}, ErrNotFound
		}
		return model.Approval{}, err
	}

	// Cascade onto the linked job, if any. An approval without a job still
	// commits its own transition.
	if a.JobID != nil && p.JobStatus != nil {
		if _, err := tx.Exec(ctx,
			`UPDATE jobs SET status = $1, updated_at = $2 WHERE id = $3`,
			string(*p.JobStatus), p.DecidedAt, *a.JobID,
		); err != nil {
			return model.Approval{}, fmt.Errorf("storage: cascade job status: %w", err)
		}
	}

	p.Audit.ResourceID = p.ApprovalID.String()
	if err := insertMutationAuditTx(ctx, tx, p.Audit); err != nil {
		return model.Approval{}, fmt.Errorf("storage: audit in decide approval tx: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Approval{}, fmt.Errorf("storage: commit decide approval tx: %w", err)
	}
	return a, nil
}

func scanApproval(row pgx.Row) (model.Approval, error) {
	var a model.Approval
	err := row.Scan(&a.ID, &a.JobID, &a.AgentID, &a.Summary, &a.Status, &a.Note, &a.DecidedAt, &a.DecidedBy, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Approval{}, ErrNotFound
		}
		return model.Approval{}, fmt.Errorf("storage: scan approval: %w", err)
	}
	return a, nil
}
