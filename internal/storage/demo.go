package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver

	"github.com/opsdeck/opsdeck/internal/model"
)

// DemoStore implements Store on an embedded SQLite database. It exists so
// the command center can run with zero external infrastructure (local demos,
// unit tests). It is selected explicitly via OPSDECK_STORAGE=demo and has no
// row-level security backstop; the application-level guard is the only
// enforcement in this mode.
type DemoStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ Store = (*DemoStore)(nil)

const demoSchema = `
CREATE TABLE IF NOT EXISTS agents (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	category        TEXT NOT NULL DEFAULT 'general',
	status          TEXT NOT NULL DEFAULT 'active',
	last_seen       TEXT,
	key_fingerprint TEXT NOT NULL UNIQUE,
	created_at      TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS projects (
	id             TEXT PRIMARY KEY,
	title          TEXT NOT NULL,
	status         TEXT NOT NULL DEFAULT 'active',
	owner_agent_id TEXT,
	created_at     TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS jobs (
	id             TEXT PRIMARY KEY,
	title          TEXT NOT NULL,
	summary        TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL DEFAULT 'queued',
	owner_agent_id TEXT NOT NULL,
	project_id     TEXT,
	created_at     TEXT NOT NULL,
	updated_at     TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS agent_events (
	id         TEXT PRIMARY KEY,
	agent_id   TEXT NOT NULL,
	event_type TEXT NOT NULL,
	payload    TEXT NOT NULL DEFAULT '{}',
	project_id TEXT,
	job_id     TEXT,
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS approvals (
	id         TEXT PRIMARY KEY,
	job_id     TEXT,
	agent_id   TEXT NOT NULL,
	summary    TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'pending',
	note       TEXT,
	decided_at TEXT,
	decided_by TEXT,
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS ai_usage (
	id           TEXT PRIMARY KEY,
	agent_id     TEXT NOT NULL,
	provider     TEXT NOT NULL,
	model        TEXT NOT NULL,
	tokens_in    INTEGER NOT NULL DEFAULT 0,
	tokens_out   INTEGER NOT NULL DEFAULT 0,
	total_tokens INTEGER NOT NULL DEFAULT 0,
	cost_usd     REAL,
	created_at   TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS operators (
	id            TEXT PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at    TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS mutation_audit (
	id            TEXT PRIMARY KEY,
	actor_type    TEXT NOT NULL,
	actor_id      TEXT NOT NULL,
	action        TEXT NOT NULL,
	resource_type TEXT NOT NULL,
	resource_id   TEXT NOT NULL,
	data          TEXT,
	created_at    TEXT NOT NULL
);
`

// NewDemo opens (or creates) an embedded SQLite database at path and applies
// the schema. Use ":memory:" for an ephemeral store.
func NewDemo(ctx context.Context, path string, logger *slog.Logger) (*DemoStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage: open sqlite: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps an in-memory
	// database from vanishing between pool connections.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, demoSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: apply demo schema: %w", err)
	}

	return &DemoStore{db: db, logger: logger}, nil
}

// Ping checks connectivity.
func (s *DemoStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close shuts down the database handle.
func (s *DemoStore) Close(context.Context) error {
	return s.db.Close()
}

// demoTime formats an instant for storage; sqlite has no timestamp type.
func demoTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func demoTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return demoTime(*t)
}

func parseDemoTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("storage: parse time %q: %w", s, err)
	}
	return t, nil
}

func parseDemoTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseDemoTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func demoUUIDPtr(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}

func parseDemoUUIDPtr(s sql.NullString) (*uuid.UUID, error) {
	if !s.Valid {
		return nil, nil
	}
	id, err := uuid.Parse(s.String)
	if err != nil {
		return nil, fmt.Errorf("storage: parse uuid %q: %w", s.String, err)
	}
	return &id, nil
}

// CreateAgent inserts a new agent.
func (s *DemoStore) CreateAgent(ctx context.Context, a model.Agent) (model.Agent, error) {
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

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agents (id, name, category, status, last_seen, key_fingerprint, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID.String(), a.Name, a.Category, string(a.Status), demoTimePtr(a.LastSeen), a.KeyFingerprint, demoTime(a.CreatedAt),
	)
	if err != nil {
		return model.Agent{}, fmt.Errorf("storage: create agent: %w", err)
	}
	return a, nil
}

func (s *DemoStore) scanAgentRow(row *sql.Row) (model.Agent, error) {
	var (
		a         model.Agent
		id        string
		status    string
		lastSeen  sql.NullString
		createdAt string
	)
	err := row.Scan(&id, &a.Name, &a.Category, &status, &lastSeen, &a.KeyFingerprint, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Agent{}, ErrNotFound
		}
		return model.Agent{}, fmt.Errorf("storage: scan agent: %w", err)
	}
	return buildDemoAgent(id, a.Name, a.Category, status, lastSeen, a.KeyFingerprint, createdAt)
}

func buildDemoAgent(id, name, category, status string, lastSeen sql.NullString, fingerprint, createdAt string) (model.Agent, error) {
	parsedID, err := uuid.Parse(id)
	if err != nil {
		return model.Agent{}, fmt.Errorf("storage: parse agent id: %w", err)
	}
	ls, err := parseDemoTimePtr(lastSeen)
	if err != nil {
		return model.Agent{}, err
	}
	ca, err := parseDemoTime(createdAt)
	if err != nil {
		return model.Agent{}, err
	}
	return model.Agent{
		ID:             parsedID,
		Name:           name,
		Category:       category,
		Status:         model.AgentStatus(status),
		LastSeen:       ls,
		KeyFingerprint: fingerprint,
		CreatedAt:      ca,
	}, nil
}

const demoAgentColumns = `id, name, category, status, last_seen, key_fingerprint, created_at`

// GetAgent retrieves an agent by ID.
func (s *DemoStore) GetAgent(ctx context.Context, id uuid.UUID) (model.Agent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+demoAgentColumns+` FROM agents WHERE id = ?`, id.String())
	return s.scanAgentRow(row)
}

// GetAgentByKeyFingerprint resolves a credential fingerprint to exactly one agent.
func (s *DemoStore) GetAgentByKeyFingerprint(ctx context.Context, fingerprint string) (model.Agent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+demoAgentColumns+` FROM agents WHERE key_fingerprint = ?`, fingerprint)
	return s.scanAgentRow(row)
}

// ListAgents returns all agents ordered by name.
func (s *DemoStore) ListAgents(ctx context.Context) ([]model.Agent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+demoAgentColumns+` FROM agents ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("storage: list agents: %w", err)
	}
	defer rows.Close()

	var agents []model.Agent
	for rows.Next() {
		var (
			id, name, category, status, fingerprint, createdAt string
			lastSeen                                           sql.NullString
		)
		if err := rows.Scan(&id, &name, &category, &status, &lastSeen, &fingerprint, &createdAt); err != nil {
			return nil, fmt.Errorf("storage: scan agent: %w", err)
		}
		a, err := buildDemoAgent(id, name, category, status, lastSeen, fingerprint, createdAt)
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// TouchAgentLastSeen refreshes an agent's last_seen instant.
func (s *DemoStore) TouchAgentLastSeen(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE agents SET last_seen = ? WHERE id = ?`, demoTime(at), id.String())
	if err != nil {
		return fmt.Errorf("storage: touch agent last_seen: %w", err)
	}
	return nil
}

// CreateProject inserts a new project.
func (s *DemoStore) CreateProject(ctx context.Context, p model.Project) (model.Project, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if p.Status == "" {
		p.Status = "active"
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (id, title, status, owner_agent_id, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		p.ID.String(), p.Title, p.Status, demoUUIDPtr(p.OwnerAgentID), demoTime(p.CreatedAt),
	)
	if err != nil {
		return model.Project{}, fmt.Errorf("storage: create project: %w", err)
	}
	return p, nil
}

// ListProjects returns all projects, newest first.
func (s *DemoStore) ListProjects(ctx context.Context) ([]model.Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, status, owner_agent_id, created_at FROM projects ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("storage: list projects: %w", err)
	}
	defer rows.Close()

	var projects []model.Project
	for rows.Next() {
		var (
			id, title, status, createdAt string
			owner                        sql.NullString
		)
		if err := rows.Scan(&id, &title, &status, &owner, &createdAt); err != nil {
			return nil, fmt.Errorf("storage: scan project: %w", err)
		}
		parsedID, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("storage: parse project id: %w", err)
		}
		ownerID, err := parseDemoUUIDPtr(owner)
		if err != nil {
			return nil, err
		}
		ca, err := parseDemoTime(createdAt)
		if err != nil {
			return nil, err
		}
		projects = append(projects, model.Project{
			ID: parsedID, Title: title, Status: status, OwnerAgentID: ownerID, CreatedAt: ca,
		})
	}
	return projects, rows.Err()
}

// CreateJob inserts a new job.
func (s *DemoStore) CreateJob(ctx context.Context, j model.Job) (model.Job, error) {
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

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, title, summary, status, owner_agent_id, project_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID.String(), j.Title, j.Summary, string(j.Status), j.OwnerAgentID.String(),
		demoUUIDPtr(j.ProjectID), demoTime(j.CreatedAt), demoTime(j.UpdatedAt),
	)
	if err != nil {
		return model.Job{}, fmt.Errorf("storage: create job: %w", err)
	}
	return j, nil
}

const demoJobColumns = `id, title, summary, status, owner_agent_id, project_id, created_at, updated_at`

func buildDemoJob(id, title, summary, status, owner string, project sql.NullString, createdAt, updatedAt string) (model.Job, error) {
	parsedID, err := uuid.Parse(id)
	if err != nil {
		return model.Job{}, fmt.Errorf("storage: parse job id: %w", err)
	}
	ownerID, err := uuid.Parse(owner)
	if err != nil {
		return model.Job{}, fmt.Errorf("storage: parse job owner: %w", err)
	}
	projectID, err := parseDemoUUIDPtr(project)
	if err != nil {
		return model.Job{}, err
	}
	ca, err := parseDemoTime(createdAt)
	if err != nil {
		return model.Job{}, err
	}
	ua, err := parseDemoTime(updatedAt)
	if err != nil {
		return model.Job{}, err
	}
	return model.Job{
		ID: parsedID, Title: title, Summary: summary, Status: model.JobStatus(status),
		OwnerAgentID: ownerID, ProjectID: projectID, CreatedAt: ca, UpdatedAt: ua,
	}, nil
}

func (s *DemoStore) getJob(ctx context.Context, q interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}, id uuid.UUID) (model.Job, error) {
	var (
		jid, title, summary, status, owner, createdAt, updatedAt string
		project                                                  sql.NullString
	)
	err := q.QueryRowContext(ctx,
		`SELECT `+demoJobColumns+` FROM jobs WHERE id = ?`, id.String(),
	).Scan(&jid, &title, &summary, &status, &owner, &project, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Job{}, ErrNotFound
		}
		return model.Job{}, fmt.Errorf("storage: scan job: %w", err)
	}
	return buildDemoJob(jid, title, summary, status, owner, project, createdAt, updatedAt)
}

// GetJob retrieves a job by ID.
func (s *DemoStore) GetJob(ctx context.Context, id uuid.UUID) (model.Job, error) {
	return s.getJob(ctx, s.db, id)
}

// ListJobs returns all jobs, most recently updated first.
func (s *DemoStore) ListJobs(ctx context.Context) ([]model.Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+demoJobColumns+` FROM jobs ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("storage: list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		var (
			jid, title, summary, status, owner, createdAt, updatedAt string
			project                                                  sql.NullString
		)
		if err := rows.Scan(&jid, &title, &summary, &status, &owner, &project, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan job: %w", err)
		}
		j, err := buildDemoJob(jid, title, summary, status, owner, project, createdAt, updatedAt)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// UpdateJobFields applies an authorized partial update and its audit entry
// in one transaction.
func (s *DemoStore) UpdateJobFields(ctx context.Context, id uuid.UUID, upd model.UpdateJobRequest, updatedAt time.Time, audit MutationAudit) (model.Job, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Job{}, fmt.Errorf("storage: begin job update tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE jobs
		 SET status  = COALESCE(?, status),
		     summary = COALESCE(?, summary),
		     updated_at = ?
		 WHERE id = ?`,
		jobStatusPtr(upd.Status), upd.Summary, demoTime(updatedAt), id.String(),
	)
	if err != nil {
		return model.Job{}, fmt.Errorf("storage: update job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.Job{}, ErrNotFound
	}

	audit.ResourceID = id.String()
	if err := s.insertAuditTx(ctx, tx, audit); err != nil {
		return model.Job{}, err
	}

	var (
		jid, title, summary, status, owner, createdAtS, updatedAtS string
		project                                                    sql.NullString
	)
	err = tx.QueryRowContext(ctx,
		`SELECT `+demoJobColumns+` FROM jobs WHERE id = ?`, id.String(),
	).Scan(&jid, &title, &summary, &status, &owner, &project, &createdAtS, &updatedAtS)
	if err != nil {
		return model.Job{}, fmt.Errorf("storage: reread job: %w", err)
	}
	j, err := buildDemoJob(jid, title, summary, status, owner, project, createdAtS, updatedAtS)
	if err != nil {
		return model.Job{}, err
	}

	if err := tx.Commit(); err != nil {
		return model.Job{}, fmt.Errorf("storage: commit job update tx: %w", err)
	}
	return j, nil
}

func jobStatusPtr(s *model.JobStatus) any {
	if s == nil {
		return nil
	}
	return string(*s)
}

// InsertEvent appends an event to the log.
func (s *DemoStore) InsertEvent(ctx context.Context, e model.AgentEvent) (model.AgentEvent, error) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.Payload == nil {
		e.Payload = map[string]any{}
	}
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return model.AgentEvent{}, fmt.Errorf("storage: marshal event payload: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO agent_events (id, agent_id, event_type, payload, project_id, job_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID.String(), e.AgentID.String(), e.EventType, string(payload),
		demoUUIDPtr(e.ProjectID), demoUUIDPtr(e.JobID), demoTime(e.CreatedAt),
	)
	if err != nil {
		return model.AgentEvent{}, fmt.Errorf("storage: insert event: %w", err)
	}
	return e, nil
}

func (s *DemoStore) queryEvents(ctx context.Context, query string, args ...any) ([]model.AgentEvent, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: query events: %w", err)
	}
	defer rows.Close()

	var events []model.AgentEvent
	for rows.Next() {
		var (
			id, agentID, eventType, payload, createdAt string
			projectID, jobID                           sql.NullString
		)
		if err := rows.Scan(&id, &agentID, &eventType, &payload, &projectID, &jobID, &createdAt); err != nil {
			return nil, fmt.Errorf("storage: scan event: %w", err)
		}
		var e model.AgentEvent
		if e.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("storage: parse event id: %w", err)
		}
		if e.AgentID, err = uuid.Parse(agentID); err != nil {
			return nil, fmt.Errorf("storage: parse event agent id: %w", err)
		}
		e.EventType = eventType
		if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
			return nil, fmt.Errorf("storage: unmarshal event payload: %w", err)
		}
		if e.ProjectID, err = parseDemoUUIDPtr(projectID); err != nil {
			return nil, err
		}
		if e.JobID, err = parseDemoUUIDPtr(jobID); err != nil {
			return nil, err
		}
		if e.CreatedAt, err = parseDemoTime(createdAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

const demoEventColumns = `id, agent_id, event_type, payload, project_id, job_id, created_at`

// ListRecentEvents returns the newest events across all agents.
func (s *DemoStore) ListRecentEvents(ctx context.Context, limit int) ([]model.AgentEvent, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.queryEvents(ctx,
		`SELECT `+demoEventColumns+` FROM agent_events ORDER BY created_at DESC LIMIT ?`, limit)
}

// ListEventsByAgent returns the newest events for one agent.
func (s *DemoStore) ListEventsByAgent(ctx context.Context, agentID uuid.UUID, limit int) ([]model.AgentEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.queryEvents(ctx,
		`SELECT `+demoEventColumns+` FROM agent_events WHERE agent_id = ? ORDER BY created_at DESC LIMIT ?`,
		agentID.String(), limit)
}

// InsertUsage appends a usage record.
func (s *DemoStore) InsertUsage(ctx context.Context, u model.UsageRecord) (model.UsageRecord, error) {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	var cost any
	if u.CostUSD != nil {
		cost = *u.CostUSD
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ai_usage (id, agent_id, provider, model, tokens_in, tokens_out, total_tokens, cost_usd, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID.String(), u.AgentID.String(), u.Provider, u.Model,
		u.TokensIn, u.TokensOut, u.TotalTokens, cost, demoTime(u.CreatedAt),
	)
	if err != nil {
		return model.UsageRecord{}, fmt.Errorf("storage: insert usage: %w", err)
	}
	return u, nil
}

// CreateApproval inserts a new approval request.
func (s *DemoStore) CreateApproval(ctx context.Context, a model.Approval) (model.Approval, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if a.Status == "" {
		a.Status = model.ApprovalPending
	}

	var decidedBy any
	if a.DecidedBy != nil {
		decidedBy = a.DecidedBy.String()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO approvals (id, job_id, agent_id, summary, status, note, decided_at, decided_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID.String(), demoUUIDPtr(a.JobID), a.AgentID.String(), a.Summary, string(a.Status),
		a.Note, demoTimePtr(a.DecidedAt), decidedBy, demoTime(a.CreatedAt),
	)
	if err != nil {
		return model.Approval{}, fmt.Errorf("storage: create approval: %w", err)
	}
	return a, nil
}

const demoApprovalColumns = `id, job_id, agent_id, summary, status, note, decided_at, decided_by, created_at`

func buildDemoApproval(id string, jobID sql.NullString, agentID, summary, status string, note, decidedAt, decidedBy sql.NullString, createdAt string) (model.Approval, error) {
	var a model.Approval
	var err error
	if a.ID, err = uuid.Parse(id); err != nil {
		return model.Approval{}, fmt.Errorf("storage: parse approval id: %w", err)
	}
	if a.JobID, err = parseDemoUUIDPtr(jobID); err != nil {
		return model.Approval{}, err
	}
	if a.AgentID, err = uuid.Parse(agentID); err != nil {
		return model.Approval{}, fmt.Errorf("storage: parse approval agent id: %w", err)
	}
	a.Summary = summary
	a.Status = model.ApprovalStatus(status)
	if note.Valid {
		n := note.String
		a.Note = &n
	}
	if a.DecidedAt, err = parseDemoTimePtr(decidedAt); err != nil {
		return model.Approval{}, err
	}
	if a.DecidedBy, err = parseDemoUUIDPtr(decidedBy); err != nil {
		return model.Approval{}, err
	}
	if a.CreatedAt, err = parseDemoTime(createdAt); err != nil {
		return model.Approval{}, err
	}
	return a, nil
}

// GetApproval retrieves an approval by ID.
func (s *DemoStore) GetApproval(ctx context.Context, id uuid.UUID) (model.Approval, error) {
	var (
		aid, agentID, summary, status, createdAt string
		jobID, note, decidedAt, decidedBy        sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT `+demoApprovalColumns+` FROM approvals WHERE id = ?`, id.String(),
	).Scan(&aid, &jobID, &agentID, &summary, &status, &note, &decidedAt, &decidedBy, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Approval{}, ErrNotFound
		}
		return model.Approval{}, fmt.Errorf("storage: get approval: %w", err)
	}
	return buildDemoApproval(aid, jobID, agentID, summary, status, note, decidedAt, decidedBy, createdAt)
}

// ListApprovals returns all approvals, pending first, newest within each group.
func (s *DemoStore) ListApprovals(ctx context.Context) ([]model.Approval, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+demoApprovalColumns+` FROM approvals
		 ORDER BY (status = 'pending') DESC, created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("storage: list approvals: %w", err)
	}
	defer rows.Close()

	var approvals []model.Approval
	for rows.Next() {
		var (
			aid, agentID, summary, status, createdAt string
			jobID, note, decidedAt, decidedBy        sql.NullString
		)
		if err := rows.Scan(&aid, &jobID, &agentID, &summary, &status, &note, &decidedAt, &decidedBy, &createdAt); err != nil {
			return nil, fmt.Errorf("storage: scan approval: %w", err)
		}
		a, err := buildDemoApproval(aid, jobID, agentID, summary, status, note, decidedAt, decidedBy, createdAt)
		if err != nil {
			return nil, err
		}
		approvals = append(approvals, a)
	}
	return approvals, rows.Err()
}

// CountPendingApprovals returns the number of approvals awaiting a decision.
func (s *DemoStore) CountPendingApprovals(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM approvals WHERE status = 'pending'`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("storage: count pending approvals: %w", err)
	}
	return n, nil
}

// DecideApproval resolves a pending approval and cascades the decision onto
// its linked job in one transaction, mirroring the Postgres implementation.
func (s *DemoStore) DecideApproval(ctx context.Context, p DecideApprovalParams) (model.Approval, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Approval{}, fmt.Errorf("storage: begin decide approval tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE approvals
		 SET status = ?, note = ?, decided_at = ?, decided_by = ?
		 WHERE id = ? AND status = 'pending'`,
		string(p.Status), p.Note, demoTime(p.DecidedAt), p.DecidedBy.String(), p.ApprovalID.String(),
	)
	if err != nil {
		return model.Approval{}, fmt.Errorf("storage: decide approval: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists bool
		if checkErr := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM approvals WHERE id = ?)`, p.ApprovalID.String(),
		).Scan(&exists); checkErr != nil {
			return model.Approval{}, fmt.Errorf("storage: decide approval existence check: %w", checkErr)
		}
		if exists {
			return model.Approval{}, ErrAlreadyDecided
		}
		return model.Approval{}, ErrNotFound
	}

	var (
		aid, agentID, summary, status, createdAt string
		jobID, note, decidedAt, decidedBy        sql.NullString
	)
	err = tx.QueryRowContext(ctx,
		`SELECT `+demoApprovalColumns+` FROM approvals WHERE id = ?`, p.ApprovalID.String(),
	).Scan(&aid, &jobID, &agentID, &summary, &status, &note, &decidedAt, &decidedBy, &createdAt)
	if err != nil {
		return model.Approval{}, fmt.Errorf("storage: reread approval: %w", err)
	}
	a, err := buildDemoApproval(aid, jobID, agentID, summary, status, note, decidedAt, decidedBy, createdAt)
	if err != nil {
		return model.Approval{}, err
	}

	if a.JobID != nil && p.JobStatus != nil {
		if _, err := tx.ExecContext(ctx,
			`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ?`,
			string(*p.JobStatus), demoTime(p.DecidedAt), a.JobID.String(),
		); err != nil {
			return model.Approval{}, fmt.Errorf("storage: cascade job status: %w", err)
		}
	}

	p.Audit.ResourceID = p.ApprovalID.String()
	if err := s.insertAuditTx(ctx, tx, p.Audit); err != nil {
		return model.Approval{}, err
	}

	if err := tx.Commit(); err != nil {
		return model.Approval{}, fmt.Errorf("storage: commit decide approval tx: %w", err)
	}
	return a, nil
}

// CreateOperator inserts a new operator account.
func (s *DemoStore) CreateOperator(ctx context.Context, op model.Operator) (model.Operator, error) {
	if op.ID == uuid.Nil {
		op.ID = uuid.New()
	}
	if op.CreatedAt.IsZero() {
		op.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO operators (id, email, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		op.ID.String(), op.Email, op.PasswordHash, demoTime(op.CreatedAt),
	)
	if err != nil {
		return model.Operator{}, fmt.Errorf("storage: create operator: %w", err)
	}
	return op, nil
}

// GetOperatorByEmail retrieves an operator by email.
func (s *DemoStore) GetOperatorByEmail(ctx context.Context, email string) (model.Operator, error) {
	var (
		id, opEmail, hash, createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, created_at FROM operators WHERE email = ?`, email,
	).Scan(&id, &opEmail, &hash, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Operator{}, ErrNotFound
		}
		return model.Operator{}, fmt.Errorf("storage: get operator by email: %w", err)
	}

	var op model.Operator
	if op.ID, err = uuid.Parse(id); err != nil {
		return model.Operator{}, fmt.Errorf("storage: parse operator id: %w", err)
	}
	op.Email = opEmail
	op.PasswordHash = hash
	if op.CreatedAt, err = parseDemoTime(createdAt); err != nil {
		return model.Operator{}, err
	}
	return op, nil
}

func (s *DemoStore) insertAuditTx(ctx context.Context, tx *sql.Tx, a MutationAudit) error {
	var data any
	if a.Data != nil {
		raw, err := json.Marshal(a.Data)
		if err != nil {
			return fmt.Errorf("storage: marshal audit data: %w", err)
		}
		data = string(raw)
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO mutation_audit (id, actor_type, actor_id, action, resource_type, resource_id, data, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), a.ActorType, a.ActorID, a.Action, a.ResourceType, a.ResourceID, data, demoTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("storage: insert mutation audit: %w", err)
	}
	return nil
}
