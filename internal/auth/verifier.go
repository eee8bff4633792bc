package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/opsdeck/opsdeck/internal/model"
	"github.com/opsdeck/opsdeck/internal/storage"
)

const agentKeySecretLen = 24

// AgentVerifier resolves agent credentials to agent identities. Verification
// has no side effects; callers decide separately whether to record activity.
type AgentVerifier struct {
	store storage.Store
}

// NewAgentVerifier creates an AgentVerifier backed by the given store.
func NewAgentVerifier(store storage.Store) *AgentVerifier {
	return &AgentVerifier{store: store}
}

// VerifyAgentKey resolves a raw credential to an agent. An empty key, an
// unknown fingerprint, and a storage failure all yield ok == false; the error
// is non-nil only for storage failures so callers can log them without
// leaking which case occurred to the client.
func (v *AgentVerifier) VerifyAgentKey(ctx context.Context, key string) (model.Agent, bool, error) {
	if key == "" {
		return model.Agent{}, false, nil
	}

	agent, err := v.store.GetAgentByKeyFingerprint(ctx, KeyFingerprint(key))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return model.Agent{}, false, nil
		}
		return model.Agent{}, false, fmt.Errorf("auth: verify agent key: %w", err)
	}
	return agent, true, nil
}

// GenerateAgentKey creates a new random agent credential. The raw key is
// returned once; only its fingerprint is meant to be stored.
func GenerateAgentKey() (string, error) {
	secret := make([]byte, agentKeySecretLen)
	if _, err := rand.Read(secret); err != nil {
		return "", fmt.Errorf("auth: generate agent key: %w", err)
	}
	return "odk_" + hex.EncodeToString(secret), nil
}
