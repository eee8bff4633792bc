// Package authz implements the ownership guard for agent-initiated writes.
//
// This package exists to share the write-access rules between the HTTP
// handlers and the mutation service without creating a circular dependency
// (both import this package; neither imports the other). The database's row
// policies are a backstop; this guard is the primary enforcement point and
// the one that produces human-readable denial reasons.
package authz

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// Decision is the outcome of a guard check. When Allowed is false, Reason
// holds a short machine-stable explanation safe to return to the caller.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// jobUpdateFields is the allow-list of job fields an owning agent may write.
// Everything else (ownership, timestamps, project linkage) is server-owned.
var jobUpdateFields = map[string]bool{
	"status":  true,
	"summary": true,
}

// CheckJobUpdateFields verifies that every requested field is on the
// allow-list. A violation names the offending field; this check is
// independent of any particular job, so callers can run it before loading
// one.
func CheckJobUpdateFields(fields []string) Decision {
	disallowed := make([]string, 0, len(fields))
	for _, f := range fields {
		if !jobUpdateFields[f] {
			disallowed = append(disallowed, f)
		}
	}
	if len(disallowed) > 0 {
		sort.Strings(disallowed)
		return deny(fmt.Sprintf("field %q is not updatable", disallowed[0]))
	}
	return allow()
}

// CheckJobUpdate evaluates an agent's request to mutate a job. Rules are
// evaluated in order; the first violated rule decides:
//
//  1. A claimed actor identity that differs from the authenticated caller is
//     denied outright, before anything about the job is considered.
//  2. Any requested field outside the allow-list is denied, naming the field.
//  3. A caller that does not own the job is denied.
func CheckJobUpdate(callerID uuid.UUID, claimedActorID *uuid.UUID, ownerAgentID uuid.UUID, fields []string) Decision {
	if d := CheckActorClaim(callerID, claimedActorID); !d.Allowed {
		return d
	}
	if d := CheckJobUpdateFields(fields); !d.Allowed {
		return d
	}
	if ownerAgentID != callerID {
		return deny("agent does not own this job")
	}
	return allow()
}

// CheckActorClaim verifies that a request body claiming to act as a specific
// agent matches the authenticated caller. A nil claim is fine; the caller's
// identity is used.
func CheckActorClaim(callerID uuid.UUID, claimedActorID *uuid.UUID) Decision {
	if claimedActorID != nil && *claimedActorID != callerID {
		return deny("actor identity does not match authenticated agent")
	}
	return allow()
}
