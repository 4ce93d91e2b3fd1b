package session

import (
	"context"
	"errors"
	"strings"

	"finnbourse.org/internal/policy"
)

var (
	// ErrUnauthenticated means no valid session was presented. Callers
	// redirect to login; nothing is retried.
	ErrUnauthenticated = errors.New("session: unauthenticated")
	// ErrSessionInvalid means the backend has invalidated the session's
	// refresh credentials. Callers must force sign-out and purge local
	// state, not silently redirect.
	ErrSessionInvalid = errors.New("session: session invalidated")
	// ErrTokenRevoked means the backend rejected this session's
	// credentials, typically after a concurrent login elsewhere.
	ErrTokenRevoked = errors.New("session: token revoked")
	// ErrTokenUnavailable means a backend token could not be obtained
	// within the bounded retry budget.
	ErrTokenUnavailable = errors.New("session: backend token unavailable")
)

// Credentials is the per-session credential bundle. The REST and GraphQL
// backends issue distinct tokens; one actor owns exactly one active bundle.
type Credentials struct {
	RESTToken    string
	GraphQLToken string
}

// LoginCredentials is the sign-in secret retained for the session so a
// backend token can be re-obtained when every issued token is gone. It is
// held only in the session cache and dies with the purge.
type LoginCredentials struct {
	Email    string
	Password string
}

// Actor is an authenticated principal resolved from a session.
type Actor struct {
	ID             string
	Role           policy.Role
	OrganizationID string
	SessionID      string
	Credentials    Credentials
}

type actorContextKey struct{}

// ContextWithActor attaches the resolved actor to the context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, &actor)
}

// ActorFromContext extracts the resolved actor from the context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	v, ok := ctx.Value(actorContextKey{}).(*Actor)
	if !ok || v == nil {
		return Actor{}, false
	}
	return *v, true
}

// ActorIDFromContext returns the actor identifier, if any; used by the
// audit log.
func ActorIDFromContext(ctx context.Context) (string, bool) {
	actor, ok := ActorFromContext(ctx)
	if !ok || strings.TrimSpace(actor.ID) == "" {
		return "", false
	}
	return actor.ID, true
}
