package mutation_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdeck/opsdeck/internal/model"
	"github.com/opsdeck/opsdeck/internal/service/mutation"
	"github.com/opsdeck/opsdeck/internal/storage"
)

type fixture struct {
	store *storage.DemoStore
	svc   *mutation.Service
	owner model.Agent
	other model.Agent
	job   model.Job
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()

	store, err := storage.NewDemo(ctx, ":memory:", slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(ctx) })

	owner, err := store.CreateAgent(ctx, model.Agent{Name: "owner", KeyFingerprint: "fp-owner"})
	require.NoError(t, err)
	other, err := store.CreateAgent(ctx, model.Agent{Name: "other", KeyFingerprint: "fp-other"})
	require.NoError(t, err)

	job, err := store.CreateJob(ctx, model.Job{
		Title:        "index the archive",
		Status:       model.JobInProgress,
		OwnerAgentID: owner.ID,
	})
	require.NoError(t, err)

	return fixture{
		store: store,
		svc:   mutation.New(store, slog.Default()),
		owner: owner,
		other: other,
		job:   job,
	}
}

func strPtr(s string) *string { return &s }

func statusPtr(s model.JobStatus) *model.JobStatus { return &s }

func TestUpdateJobByOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	upd := model.UpdateJobRequest{
		Status:  statusPtr(model.JobCompleted),
		Summary: strPtr("archive fully indexed"),
	}
	updated, err := f.svc.UpdateJob(ctx, f.owner, f.job.ID, upd, []string{"status", "summary"})
	require.NoError(t, err)

	assert.Equal(t, model.JobCompleted, updated.Status)
	assert.Equal(t, "archive fully indexed", updated.Summary)
	assert.True(t, updated.UpdatedAt.After(f.job.UpdatedAt))
	// Untouched fields survive a partial update.
	assert.Equal(t, f.job.Title, updated.Title)
	assert.Equal(t, f.owner.ID, updated.OwnerAgentID)
}

func TestUpdateJobPartial(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	updated, err := f.svc.UpdateJob(ctx, f.owner, f.job.ID,
		model.UpdateJobRequest{Summary: strPtr("halfway there")}, []string{"summary"})
	require.NoError(t, err)

	assert.Equal(t, "halfway there", updated.Summary)
	assert.Equal(t, f.job.Status, updated.Status)
}

func TestUpdateJobByNonOwnerIsForbidden(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.UpdateJob(ctx, f.other, f.job.ID,
		model.UpdateJobRequest{Status: statusPtr(model.JobCompleted)}, []string{"status"})

	var forbidden *mutation.ForbiddenError
	require.ErrorAs(t, err, &forbidden)
	assert.Equal(t, "agent does not own this job", forbidden.Reason)

	// The job is untouched.
	job, err := f.store.GetJob(ctx, f.job.ID)
	require.NoError(t, err)
	assert.Equal(t, f.job.Status, job.Status)
}

func TestUpdateJobForbiddenFieldNamesTheField(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.UpdateJob(ctx, f.owner, f.job.ID,
		model.UpdateJobRequest{Status: statusPtr(model.JobCompleted)},
		[]string{"owner_agent_id", "status"})

	var forbidden *mutation.ForbiddenError
	require.ErrorAs(t, err, &forbidden)
	assert.Equal(t, `field "owner_agent_id" is not updatable`, forbidden.Reason)
}

func TestUpdateJobForbiddenFieldOnMissingJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// A disallowed field is rejected identically whether or not the job
	// exists, so probing cannot reveal job IDs.
	_, err := f.svc.UpdateJob(ctx, f.owner, uuid.New(),
		model.UpdateJobRequest{}, []string{"owner_agent_id"})

	var forbidden *mutation.ForbiddenError
	require.ErrorAs(t, err, &forbidden)
	assert.Equal(t, `field "owner_agent_id" is not updatable`, forbidden.Reason)
}

func TestUpdateJobMissingJobIsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.UpdateJob(ctx, f.owner, uuid.New(),
		model.UpdateJobRequest{Status: statusPtr(model.JobCompleted)}, []string{"status"})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRecordEventStampsCallerIdentity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	event, err := f.svc.RecordEvent(ctx, f.owner, model.ReportEventRequest{
		EventType: "task_started",
		Payload:   map[string]any{"step": "fetch"},
		JobID:     &f.job.ID,
	})
	require.NoError(t, err)

	assert.Equal(t, f.owner.ID, event.AgentID)
	assert.NotEqual(t, uuid.Nil, event.ID)
	assert.False(t, event.CreatedAt.IsZero())
}

func TestRecordEventRejectsMismatchedIdentity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.RecordEvent(ctx, f.owner, model.ReportEventRequest{
		AgentID:   &f.other.ID,
		EventType: "task_started",
	})

	var forbidden *mutation.ForbiddenError
	require.ErrorAs(t, err, &forbidden)
	assert.Equal(t, "actor identity does not match authenticated agent", forbidden.Reason)

	events, err := f.store.ListRecentEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestRecordEventAcceptsMatchingIdentity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	event, err := f.svc.RecordEvent(ctx, f.owner, model.ReportEventRequest{
		AgentID:   &f.owner.ID,
		EventType: "task_finished",
	})
	require.NoError(t, err)
	assert.Equal(t, f.owner.ID, event.AgentID)
}

func TestRecordUsageComputesTotal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	record, err := f.svc.RecordUsage(ctx, f.owner, model.ReportUsageRequest{
		Provider:  "anthropic",
		Model:     "claude-sonnet",
		TokensIn:  1200,
		TokensOut: 340,
	})
	require.NoError(t, err)

	assert.Equal(t, f.owner.ID, record.AgentID)
	assert.Equal(t, int64(1540), record.TotalTokens)
}

func TestRecordUsageRejectsMismatchedIdentity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.RecordUsage(ctx, f.owner, model.ReportUsageRequest{
		AgentID:  &f.other.ID,
		Provider: "anthropic",
		Model:    "claude-sonnet",
	})

	var forbidden *mutation.ForbiddenError
	require.ErrorAs(t, err, &forbidden)
}
