package approvals_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdeck/opsdeck/internal/model"
	"github.com/opsdeck/opsdeck/internal/service/approvals"
	"github.com/opsdeck/opsdeck/internal/storage"
)

type fixture struct {
	store    *storage.DemoStore
	svc      *approvals.Service
	agent    model.Agent
	operator uuid.UUID
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()

	store, err := storage.NewDemo(ctx, ":memory:", slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(ctx) })

	agent, err := store.CreateAgent(ctx, model.Agent{Name: "builder", KeyFingerprint: "fp-builder"})
	require.NoError(t, err)

	return fixture{
		store:    store,
		svc:      approvals.New(store, slog.Default()),
		agent:    agent,
		operator: uuid.New(),
	}
}

func (f fixture) pendingApproval(t *testing.T, jobID *uuid.UUID) model.Approval {
	t.Helper()
	a, err := f.store.CreateApproval(context.Background(), model.Approval{
		JobID:   jobID,
		AgentID: f.agent.ID,
		Summary: "deploy the new parser",
	})
	require.NoError(t, err)
	return a
}

func (f fixture) waitingJob(t *testing.T) model.Job {
	t.Helper()
	job, err := f.store.CreateJob(context.Background(), model.Job{
		Title:        "ship parser",
		Status:       model.JobWaitingApproval,
		OwnerAgentID: f.agent.ID,
	})
	require.NoError(t, err)
	return job
}

func TestApproveCascadesToJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	job := f.waitingJob(t)
	approval := f.pendingApproval(t, &job.ID)

	decided, err := f.svc.Decide(ctx, approval.ID, model.ActionApprove, "", f.operator)
	require.NoError(t, err)

	assert.Equal(t, model.ApprovalApproved, decided.Status)
	require.NotNil(t, decided.DecidedAt)
	require.NotNil(t, decided.DecidedBy)
	assert.Equal(t, f.operator, *decided.DecidedBy)

	got, err := f.store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobInProgress, got.Status)
}

func TestRequestChangesCascadesToJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	job := f.waitingJob(t)
	approval := f.pendingApproval(t, &job.ID)

	decided, err := f.svc.Decide(ctx, approval.ID, model.ActionRequestChanges, "tighten the error handling", f.operator)
	require.NoError(t, err)

	assert.Equal(t, model.ApprovalChangesRequested, decided.Status)
	require.NotNil(t, decided.Note)
	assert.Equal(t, "tighten the error handling", *decided.Note)

	got, err := f.store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobBlocked, got.Status)
}

func TestRequestChangesRequiresNote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	approval := f.pendingApproval(t, nil)

	for _, note := range []string{"", "   ", "\t\n"} {
		_, err := f.svc.Decide(ctx, approval.ID, model.ActionRequestChanges, note, f.operator)
		assert.ErrorIs(t, err, approvals.ErrNoteRequired)
	}

	// The approval stays pending after rejected attempts.
	got, err := f.store.GetApproval(ctx, approval.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ApprovalPending, got.Status)
}

func TestDecideIsSingleShot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	job := f.waitingJob(t)
	approval := f.pendingApproval(t, &job.ID)

	_, err := f.svc.Decide(ctx, approval.ID, model.ActionApprove, "", f.operator)
	require.NoError(t, err)

	// A second decision of any kind is rejected, and the first outcome stands.
	_, err = f.svc.Decide(ctx, approval.ID, model.ActionRequestChanges, "changed my mind", f.operator)
	assert.ErrorIs(t, err, storage.ErrAlreadyDecided)

	got, err := f.store.GetApproval(ctx, approval.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ApprovalApproved, got.Status)

	gotJob, err := f.store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobInProgress, gotJob.Status)
}

func TestDecideWithoutLinkedJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	approval := f.pendingApproval(t, nil)

	decided, err := f.svc.Decide(ctx, approval.ID, model.ActionApprove, "", f.operator)
	require.NoError(t, err)
	assert.Equal(t, model.ApprovalApproved, decided.Status)
	assert.Nil(t, decided.JobID)
}

func TestDecideUnknownApproval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Decide(ctx, uuid.New(), model.ActionApprove, "", f.operator)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDecideUnknownAction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	approval := f.pendingApproval(t, nil)

	_, err := f.svc.Decide(ctx, approval.ID, model.ApprovalAction("defer"), "", f.operator)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, storage.ErrNotFound)
}
