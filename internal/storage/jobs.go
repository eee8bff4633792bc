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

const jobColumns = `id, title, summary, status, owner_agent_id, project_id, created_at, updated_at`

// CreateJob inserts a new job.
func (db *PostgresStore) CreateJob(ctx context.Context, j model.Job) (model.Job, error) {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	now := time.Now().UTC()
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	j.UpdatedAt = now
	if j.Status == "" {
		j.Status = model.JobQueued
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO jobs (id, title, summary, status, owner_agent_id, project_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		j.ID, j.Title, j.Summary, string(j.Status), j.OwnerAgentID, j.ProjectID, j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		return model.Job{}, fmt.Errorf("storage: create job: %w", err)
	}
	return j, nil
}

// GetJob retrieves a job by ID.
func (db *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (model.Job, error) {
	row := db.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	return scanJob(row)
}

// ListJobs returns all jobs, most recently updated first.
func (db *PostgresStore) ListJobs(ctx context.Context) ([]model.Job, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM jobs ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("storage: list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// UpdateJobFields applies an authorized partial update and its audit entry
// in one transaction. updated_at is always stamped with the server-supplied
// instant, never a caller value.
func (db *PostgresStore) UpdateJobFields(ctx context.Context, id uuid.UUID, upd model.UpdateJobRequest, updatedAt time.Time, audit MutationAudit) (model.Job, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return model.Job{}, fmt.Errorf("storage: begin job update tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx,
		`UPDATE jobs
		 SET status  = COALESCE($1, status),
		     summary = COALESCE($2, summary),
		     updated_at = $3
		 WHERE id = $4
		 RETURNING `+jobColumns,
		upd.Status, upd.Summary, updatedAt, id,
	)
	j, err := scanJob(row)
	if err != nil {
		return model.Job{}, err
	}

	audit.ResourceID = id.String()
	if err := insertMutationAuditTx(ctx, tx, audit); err != nil {
		return model.Job{}, fmt.Errorf("storage: audit in job update tx: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Job{}, fmt.Errorf("storage: commit job update tx: %w", err)
	}
	return j, nil
}

func scanJob(row pgx.Row) (model.Job, error) {
	var j model.Job
	err := row.Scan(&j.ID, &j.Title, &j.Summary, &j.Status, &j.OwnerAgentID, &j.ProjectID, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Job{}, ErrNotFound
		}
		return model.Job{}, fmt.Errorf("storage: scan job: %w", err)
	}
	return j, nil
}
