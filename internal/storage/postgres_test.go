package storage_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdeck/opsdeck/internal/model"
	"github.com/opsdeck/opsdeck/internal/storage"
	"github.com/opsdeck/opsdeck/internal/testutil"
)

var testStore *storage.PostgresStore

func TestMain(m *testing.M) {
	// The demo store tests in this package run without Docker; only the
	// Postgres tests need the container.
	if os.Getenv("OPSDECK_SKIP_DOCKER_TESTS") != "" {
		os.Exit(m.Run())
	}

	tc := testutil.MustStartPostgres()

	var err error
	testStore, err = tc.NewTestStore(context.Background(), testutil.TestLogger())
	if err != nil {
		tc.Terminate()
		panic(err)
	}
	code := m.Run()
	_ = testStore.Close(context.Background())
	tc.Terminate()
	os.Exit(code)
}

func requirePostgres(t *testing.T) {
	t.Helper()
	if testStore == nil {
		t.Skip("docker tests disabled")
	}
}

func createAgent(t *testing.T, name string) model.Agent {
	t.Helper()
	a, err := testStore.CreateAgent(context.Background(), model.Agent{
		Name:           name,
		KeyFingerprint: "fp-" + name + "-" + uuid.New().String(),
	})
	require.NoError(t, err)
	return a
}

func TestAgentRoundTrip(t *testing.T) {
	requirePostgres(t)
	ctx := context.Background()
	created := createAgent(t, "roundtrip")

	got, err := testStore.GetAgent(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Name, got.Name)
	assert.Equal(t, model.AgentActive, got.Status)

	byFP, err := testStore.GetAgentByKeyFingerprint(ctx, created.KeyFingerprint)
	require.NoError(t, err)
	assert.Equal(t, created.ID, byFP.ID)

	_, err = testStore.GetAgentByKeyFingerprint(ctx, "no-such-fingerprint")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTouchAgentLastSeen(t *testing.T) {
	requirePostgres(t)
	ctx := context.Background()
	agent := createAgent(t, "toucher")
	require.Nil(t, agent.LastSeen)

	at := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, testStore.TouchAgentLastSeen(ctx, agent.ID, at))

	got, err := testStore.GetAgent(ctx, agent.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastSeen)
	assert.WithinDuration(t, at, *got.LastSeen, time.Second)
}

func TestUpdateJobFields(t *testing.T) {
	requirePostgres(t)
	ctx := context.Background()
	agent := createAgent(t, "jobber")

	job, err := testStore.CreateJob(ctx, model.Job{
		Title:        "crawl the docs",
		OwnerAgentID: agent.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, model.JobQueued, job.Status)

	status := model.JobInProgress
	updated, err := testStore.UpdateJobFields(ctx, job.ID,
		model.UpdateJobRequest{Status: &status}, time.Now().UTC(),
		storage.MutationAudit{ActorType: "agent", ActorID: agent.ID.String(), Action: "update", ResourceType: "job"})
	require.NoError(t, err)
	assert.Equal(t, model.JobInProgress, updated.Status)
	assert.Equal(t, "crawl the docs", updated.Title)

	_, err = testStore.UpdateJobFields(ctx, uuid.New(),
		model.UpdateJobRequest{Status: &status}, time.Now().UTC(), storage.MutationAudit{})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestEventsByAgentFilterInQuery(t *testing.T) {
	requirePostgres(t)
	ctx := context.Background()
	a := createAgent(t, "emitter-a")
	b := createAgent(t, "emitter-b")

	for i := 0; i < 3; i++ {
		_, err := testStore.InsertEvent(ctx, model.AgentEvent{AgentID: a.ID, EventType: "tick"})
		require.NoError(t, err)
	}
	_, err := testStore.InsertEvent(ctx, model.AgentEvent{AgentID: b.ID, EventType: "tock"})
	require.NoError(t, err)

	events, err := testStore.ListEventsByAgent(ctx, a.ID, 10)
	require.NoError(t, err)
	require.Len(t, events, 3)
	for _, e := range events {
		assert.Equal(t, a.ID, e.AgentID)
	}
}

func TestDecideApprovalSingleShotAndCascade(t *testing.T) {
	requirePostgres(t)
	ctx := context.Background()
	agent := createAgent(t, "decider-target")

	job, err := testStore.CreateJob(ctx, model.Job{
		Title:        "ship it",
		Status:       model.JobWaitingApproval,
		OwnerAgentID: agent.ID,
	})
	require.NoError(t, err)

	approval, err := testStore.CreateApproval(ctx, model.Approval{
		JobID:   &job.ID,
		AgentID: agent.ID,
		Summary: "release v2",
	})
	require.NoError(t, err)

	operator := uuid.New()
	jobStatus := model.JobInProgress
	decided, err := testStore.DecideApproval(ctx, storage.DecideApprovalParams{
		ApprovalID: approval.ID,
		Status:     model.ApprovalApproved,
		DecidedBy:  operator,
		DecidedAt:  time.Now().UTC(),
		JobStatus:  &jobStatus,
		Audit:      storage.MutationAudit{ActorType: "operator", ActorID: operator.String(), Action: "approve", ResourceType: "approval"},
	})
	require.NoError(t, err)
	assert.Equal(t, model.ApprovalApproved, decided.Status)

	gotJob, err := testStore.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobInProgress, gotJob.Status)

	// Second decision is rejected.
	_, err = testStore.DecideApproval(ctx, storage.DecideApprovalParams{
		ApprovalID: approval.ID,
		Status:     model.ApprovalChangesRequested,
		DecidedBy:  operator,
		DecidedAt:  time.Now().UTC(),
	})
	assert.ErrorIs(t, err, storage.ErrAlreadyDecided)

	// Unknown approval is distinguishable.
	_, err = testStore.DecideApproval(ctx, storage.DecideApprovalParams{
		ApprovalID: uuid.New(),
		Status:     model.ApprovalApproved,
		DecidedBy:  operator,
		DecidedAt:  time.Now().UTC(),
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestListApprovalsPendingFirst(t *testing.T) {
	requirePostgres(t)
	ctx := context.Background()
	agent := createAgent(t, "queue-filler")

	decidedApproval, err := testStore.CreateApproval(ctx, model.Approval{
		AgentID: agent.ID, Summary: "old decided",
	})
	require.NoError(t, err)
	_, err = testStore.DecideApproval(ctx, storage.DecideApprovalParams{
		ApprovalID: decidedApproval.ID,
		Status:     model.ApprovalApproved,
		DecidedBy:  uuid.New(),
		DecidedAt:  time.Now().UTC(),
	})
	require.NoError(t, err)

	pending, err := testStore.CreateApproval(ctx, model.Approval{
		AgentID: agent.ID, Summary: "fresh pending",
	})
	require.NoError(t, err)

	list, err := testStore.ListApprovals(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, list)

	// All pending approvals come before all decided ones.
	sawDecided := false
	for _, a := range list {
		if a.Decided() {
			sawDecided = true
		} else {
			assert.False(t, sawDecided, "pending approval listed after a decided one")
		}
	}
	assert.Equal(t, pending.ID, list[0].ID)
}

func TestOperatorRoundTrip(t *testing.T) {
	requirePostgres(t)
	ctx := context.Background()

	op, err := testStore.CreateOperator(ctx, model.Operator{
		Email:        "ops-roundtrip@example.com",
		PasswordHash: "salt$hash",
	})
	require.NoError(t, err)

	got, err := testStore.GetOperatorByEmail(ctx, "ops-roundtrip@example.com")
	require.NoError(t, err)
	assert.Equal(t, op.ID, got.ID)
	assert.Equal(t, "salt$hash", got.PasswordHash)

	_, err = testStore.GetOperatorByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
