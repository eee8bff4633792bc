package auth_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdeck/opsdeck/internal/auth"
	"github.com/opsdeck/opsdeck/internal/model"
	"github.com/opsdeck/opsdeck/internal/storage"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := auth.HashPassword("correct horse battery staple")
	require.NoError(t, err)
	assert.NotEmpty(t, hash)

	valid, err := auth.VerifyPassword("correct horse battery staple", hash)
	require.NoError(t, err)
	assert.True(t, valid)

	valid, err = auth.VerifyPassword("wrong password", hash)
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestKeyFingerprintIsStable(t *testing.T) {
	a := auth.KeyFingerprint("odk_abc123")
	b := auth.KeyFingerprint("odk_abc123")
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	assert.NotEqual(t, a, auth.KeyFingerprint("odk_abc124"))
}

func TestGenerateAgentKey(t *testing.T) {
	key, err := auth.GenerateAgentKey()
	require.NoError(t, err)
	assert.Regexp(t, `^odk_[0-9a-f]{48}$`, key)

	other, err := auth.GenerateAgentKey()
	require.NoError(t, err)
	assert.NotEqual(t, key, other)
}

func TestSessionIssueAndValidate(t *testing.T) {
	mgr, err := auth.NewSessionManager("", "", time.Hour)
	require.NoError(t, err)

	op := model.Operator{ID: uuid.New(), Email: "ops@example.com"}

	token, expiresAt, err := mgr.IssueSession(op)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.True(t, expiresAt.After(time.Now()))

	claims, err := mgr.ValidateSession(token)
	require.NoError(t, err)
	assert.Equal(t, op.ID.String(), claims.Subject)
	assert.Equal(t, "ops@example.com", claims.Email)
}

func TestSessionRejectsForeignToken(t *testing.T) {
	issuer, err := auth.NewSessionManager("", "", time.Hour)
	require.NoError(t, err)
	verifier, err := auth.NewSessionManager("", "", time.Hour)
	require.NoError(t, err)

	token, _, err := issuer.IssueSession(model.Operator{ID: uuid.New(), Email: "ops@example.com"})
	require.NoError(t, err)

	_, err = verifier.ValidateSession(token)
	assert.Error(t, err)
}

func TestVerifyAgentKey(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewDemo(ctx, ":memory:", slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(ctx) })

	rawKey, err := auth.GenerateAgentKey()
	require.NoError(t, err)

	created, err := store.CreateAgent(ctx, model.Agent{
		Name:           "scout",
		KeyFingerprint: auth.KeyFingerprint(rawKey),
	})
	require.NoError(t, err)

	v := auth.NewAgentVerifier(store)

	agent, ok, err := v.VerifyAgentKey(ctx, rawKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, created.ID, agent.ID)

	_, ok, err = v.VerifyAgentKey(ctx, "odk_unknown")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = v.VerifyAgentKey(ctx, "")
	require.NoError(t, err)
	assert.False(t, ok)
}
