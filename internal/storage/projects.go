package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/opsdeck/opsdeck/internal/model"
)

// CreateProject inserts a new project.
func (db *PostgresStore) CreateProject(ctx context.Context, p model.Project) (model.Project, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if p.Status == "" {
		p.Status = "active"
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO projects (id, title, status, owner_agent_id, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		p.ID, p.Title, p.Status, p.OwnerAgentID, p.CreatedAt,
	)
	if err != nil {
		return model.Project{}, fmt.Errorf("storage: create project: %w", err)
	}
	return p, nil
}

// ListProjects returns all projects, newest first.
func (db *PostgresStore) ListProjects(ctx context.Context) ([]model.Project, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, title, status, owner_agent_id, created_at FROM projects ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("storage: list projects: %w", err)
	}
	defer rows.Close()

	var projects []model.Project
	for rows.Next() {
		var p model.Project
		if err := rows.Scan(&p.ID, &p.Title, &p.Status, &p.OwnerAgentID, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}
