// Package ctxutil provides shared context key accessors.
//
// The server middleware populates these values; handlers, services, and the
// rate limiter read them back. Keeping the accessors here avoids import
// cycles between those packages.
package ctxutil

import (
	"context"

	"github.com/opsdeck/opsdeck/internal/auth"
	"github.com/opsdeck/opsdeck/internal/model"
)

type contextKey string

const (
	keyAgent     contextKey = "agent"
	keyOperator  contextKey = "operator"
	keyRequestID contextKey = "request_id"
)

// WithAgent returns a new context carrying the authenticated agent.
func WithAgent(ctx context.Context, agent model.Agent) context.Context {
	return context.WithValue(ctx, keyAgent, agent)
}

// AgentFromContext extracts the authenticated agent from the context.
func AgentFromContext(ctx context.Context) (model.Agent, bool) {
	v, ok := ctx.Value(keyAgent).(model.Agent)
	return v, ok
}

// WithOperator returns a new context carrying the operator session claims.
func WithOperator(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, keyOperator, claims)
}

// OperatorFromContext extracts the operator session claims from the context.
func OperatorFromContext(ctx context.Context) *auth.Claims {
	if v, ok := ctx.Value(keyOperator).(*auth.Claims); ok {
		return v
	}
	return nil
}

// WithRequestID returns a new context carrying the request ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyRequestID, id)
}

// RequestIDFromContext extracts the request ID from the context.
func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(keyRequestID).(string); ok {
		return v
	}
	return ""
}
