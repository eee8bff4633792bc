package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/opsdeck/opsdeck/internal/model"
)

const eventColumns = `id, agent_id, event_type, payload, project_id, job_id, created_at`

// InsertEvent appends an event to the log. The caller (mutation gateway) has
// already stamped agent_id from the verified identity.
func (db *PostgresStore) InsertEvent(ctx context.Context, e model.AgentEvent) (model.AgentEvent, error) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.Payload == nil {
		e.Payload = map[string]any{}
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO agent_events (id, agent_id, event_type, payload, project_id, job_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.AgentID, e.EventType, e.Payload, e.ProjectID, e.JobID, e.CreatedAt,
	)
	if err != nil {
		return model.AgentEvent{}, fmt.Errorf("storage: insert event: %w", err)
	}
	return e, nil
}

// ListRecentEvents returns the newest events across all agents.
func (db *PostgresStore) ListRecentEvents(ctx context.Context, limit int) ([]model.AgentEvent, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := db.pool.Query(ctx,
		`SELECT `+eventColumns+` FROM agent_events ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: list recent events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListEventsByAgent returns the newest events for one agent. The filter is
// part of the query, not applied after the fact, so a caller can never see
// another agent's rows through a pagination or error edge case.
func (db *PostgresStore) ListEventsByAgent(ctx context.Context, agentID uuid.UUID, limit int) ([]model.AgentEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.pool.Query(ctx,
		`SELECT `+eventColumns+` FROM agent_events WHERE agent_id = $1 ORDER BY created_at DESC LIMIT $2`,
		agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: list events by agent: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows pgx.Rows) ([]model.AgentEvent, error) {
	var events []model.AgentEvent
	for rows.Next() {
		var e model.AgentEvent
		if err := rows.Scan(&e.ID, &e.AgentID, &e.EventType, &e.Payload, &e.ProjectID, &e.JobID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
