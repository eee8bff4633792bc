package authz_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/opsdeck/opsdeck/internal/authz"
)

func TestCheckJobUpdate(t *testing.T) {
	caller := uuid.New()
	otherAgent := uuid.New()

	tests := []struct {
		name       string
		claimed    *uuid.UUID
		owner      uuid.UUID
		fields     []string
		wantAllow  bool
		wantReason string
	}{
		{
			name:      "owner updating allowed fields",
			owner:     caller,
			fields:    []string{"status", "summary"},
			wantAllow: true,
		},
		{
			name:      "owner updating one allowed field",
			owner:     caller,
			fields:    []string{"status"},
			wantAllow: true,
		},
		{
			name:      "matching actor claim is accepted",
			claimed:   &caller,
			owner:     caller,
			fields:    []string{"summary"},
			wantAllow: true,
		},
		{
			name:       "mismatched actor claim beats every other rule",
			claimed:    &otherAgent,
			owner:      otherAgent,
			fields:     []string{"owner_agent_id"},
			wantAllow:  false,
			wantReason: "actor identity does not match authenticated agent",
		},
		{
			name:       "field outside allow-list is named",
			owner:      caller,
			fields:     []string{"status", "owner_agent_id"},
			wantAllow:  false,
			wantReason: `field "owner_agent_id" is not updatable`,
		},
		{
			name:       "timestamp field is rejected even for the owner",
			owner:      caller,
			fields:     []string{"updated_at"},
			wantAllow:  false,
			wantReason: `field "updated_at" is not updatable`,
		},
		{
			name:       "field check runs before ownership check",
			owner:      otherAgent,
			fields:     []string{"title"},
			wantAllow:  false,
			wantReason: `field "title" is not updatable`,
		},
		{
			name:       "non-owner with clean fields",
			owner:      otherAgent,
			fields:     []string{"status"},
			wantAllow:  false,
			wantReason: "agent does not own this job",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := authz.CheckJobUpdate(caller, tt.claimed, tt.owner, tt.fields)
			assert.Equal(t, tt.wantAllow, d.Allowed)
			if !tt.wantAllow {
				assert.Equal(t, tt.wantReason, d.Reason)
			}
		})
	}
}

func TestCheckActorClaim(t *testing.T) {
	caller := uuid.New()
	other := uuid.New()

	assert.True(t, authz.CheckActorClaim(caller, nil).Allowed)
	assert.True(t, authz.CheckActorClaim(caller, &caller).Allowed)

	d := authz.CheckActorClaim(caller, &other)
	assert.False(t, d.Allowed)
	assert.Equal(t, "actor identity does not match authenticated agent", d.Reason)
}
