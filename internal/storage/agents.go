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

// CreateAgent inserts a new agent.
func (db *PostgresStore) CreateAgent(ctx context.Context, a model.Agent) (model.Agent, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if a.Status == "" {
		a.Status = model.AgentActive
	}
	if a.Category == "" {
		a.Category = "general"
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO agents (id, name, category, status, last_seen, key_fingerprint, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.Name, a.Category, string(a.Status), a.LastSeen, a.KeyFingerprint, a.CreatedAt,
	)
	if err != nil {
		return model.Agent{}, fmt.Errorf("storage: create agent: %w", err)
	}
	return a, nil
}

const agentColumns = `id, name, category, status, last_seen, key_fingerprint, created_at`

// GetAgent retrieves an agent by ID.
func (db *PostgresStore) GetAgent(ctx context.Context, id uuid.UUID) (model.Agent, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE id = $1`, id)
	return scanAgent(row)
}

// GetAgentByKeyFingerprint resolves a credential fingerprint to exactly one
// agent. The key_fingerprint column is unique, so zero or one row can match;
// zero matches return ErrNotFound.
func (db *PostgresStore) GetAgentByKeyFingerprint(ctx context.Context, fingerprint string) (model.Agent, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE key_fingerprint = $1`, fingerprint)
	return scanAgent(row)
}

// ListAgents returns all agents ordered by name.
func (db *PostgresStore) ListAgents(ctx context.Context) ([]model.Agent, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+agentColumns+` FROM agents ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("storage: list agents: %w", err)
	}
	defer rows.Close()

	var agents []model.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// TouchAgentLastSeen refreshes an agent's last_seen instant.
func (db *PostgresStore) TouchAgentLastSeen(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE agents SET last_seen = $1 WHERE id = $2`, at, id)
	if err != nil {
		return fmt.Errorf("storage: touch agent last_seen: %w", err)
	}
	return nil
}

func scanAgent(row pgx.Row) (model.Agent, error) {
	var a model.Agent
	err := row.Scan(&a.ID, &a.Name, &a.Category, &a.Status, &a.LastSeen, &a.KeyFingerprint, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Agent{}, ErrNotFound
		}
		return model.Agent{}, fmt.Errorf("storage: scan agent: %w", err)
	}
	return a, nil
}
