package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finnbourse.org/internal/gateway"
)

// fakeBackend stands in for the remote auth endpoints. Each endpoint's
// behavior is swappable per test.
type fakeBackend struct {
	*httptest.Server
	login    atomic.Int64
	exchange atomic.Int64
	validate atomic.Int64

	loginHandler    func(w http.ResponseWriter, r *http.Request)
	exchangeHandler func(w http.ResponseWriter, r *http.Request)
	validateHandler func(w http.ResponseWriter, r *http.Request)
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	fb := &fakeBackend{}
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		fb.login.Add(1)
		if fb.loginHandler != nil {
			fb.loginHandler(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "rest-abc",
			"graphql_token": "gql-def",
			"user": map[string]string{
				"id":              "user-7",
				"role":            "agence.premiere_validation",
				"organization_id": "org-3",
			},
		})
	})
	mux.HandleFunc("/auth/exchange", func(w http.ResponseWriter, r *http.Request) {
		fb.exchange.Add(1)
		if fb.exchangeHandler != nil {
			fb.exchangeHandler(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "rest-renewed"})
	})
	mux.HandleFunc("/auth/validate", func(w http.ResponseWriter, r *http.Request) {
		fb.validate.Add(1)
		if fb.validateHandler != nil {
			fb.validateHandler(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"valid": true})
	})
	fb.Server = httptest.NewServer(mux)
	t.Cleanup(fb.Close)
	return fb
}

func newTestResolver(t *testing.T, fb *fakeBackend, opts ...ResolverOption) *Resolver {
	t.Helper()
	gw, err := gateway.New(fb.URL, fb.URL)
	require.NoError(t, err)
	r, err := NewResolver(gw, NewMemoryCache(), "test-secret", opts...)
	require.NoError(t, err)
	return r
}

func TestLoginAndResolve(t *testing.T) {
	fb := newFakeBackend(t)
	r := newTestResolver(t, fb)
	ctx := context.Background()

	actor, token, err := r.Login(ctx, "Agent@Finnbourse.DZ", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "user-7", actor.ID)
	assert.Equal(t, "org-3", actor.OrganizationID)
	assert.NotEmpty(t, actor.SessionID)
	assert.NotEmpty(t, token)

	resolved, err := r.ResolveActor(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, actor.ID, resolved.ID)
	assert.Equal(t, actor.Role, resolved.Role)
	assert.Equal(t, actor.SessionID, resolved.SessionID)
	assert.Equal(t, "rest-abc", resolved.Credentials.RESTToken)
	assert.Equal(t, "gql-def", resolved.Credentials.GraphQLToken)
}

func TestLoginRejectedCredentials(t *testing.T) {
	fb := newFakeBackend(t)
	fb.loginHandler = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"bad credentials"}`))
	}
	r := newTestResolver(t, fb)

	_, _, err := r.Login(context.Background(), "agent@finnbourse.dz", "wrong")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestResolveActorRejectsBadTokens(t *testing.T) {
	fb := newFakeBackend(t)
	r := newTestResolver(t, fb)
	ctx := context.Background()

	for _, token := range []string{"", "  ", "not-a-jwt", "a.b.c"} {
		_, err := r.ResolveActor(ctx, token)
		assert.ErrorIs(t, err, ErrUnauthenticated, "token %q", token)
	}
}

func TestResolveActorRejectsExpiredToken(t *testing.T) {
	fb := newFakeBackend(t)
	clock := time.Now()
	r := newTestResolver(t, fb, WithClock(func() time.Time { return clock }), WithSessionTTL(time.Hour))

	_, token, err := r.Login(context.Background(), "agent@finnbourse.dz", "s3cret")
	require.NoError(t, err)

	clock = clock.Add(2 * time.Hour)
	_, err = r.ResolveActor(context.Background(), token)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestRefreshFailureForcesSignOut(t *testing.T) {
	fb := newFakeBackend(t)
	r := newTestResolver(t, fb)
	ctx := context.Background()

	actor, _, err := r.Login(ctx, "agent@finnbourse.dz", "s3cret")
	require.NoError(t, err)
	r.StoreMenu(actor.SessionID, []string{"ordres/carnet", "editions"})
	require.True(t, r.HasStoredMenuData(actor.SessionID))

	marked, err := r.MarkRefreshFailure(actor)
	require.NoError(t, err)

	_, err = r.ResolveActor(ctx, marked)
	assert.ErrorIs(t, err, ErrSessionInvalid)

	// Everything cached for the session is gone after the purge.
	assert.False(t, r.HasStoredMenuData(actor.SessionID))
	_, ok := r.cache.Credentials(actor.SessionID)
	assert.False(t, ok)
}

func TestEnsureBackendTokenKeepsExisting(t *testing.T) {
	fb := newFakeBackend(t)
	r := newTestResolver(t, fb)

	actor := Actor{ID: "u", SessionID: "s", Credentials: Credentials{RESTToken: "already"}}
	got, err := r.EnsureBackendToken(context.Background(), actor)
	require.NoError(t, err)
	assert.Equal(t, "already", got.Credentials.RESTToken)
	assert.Zero(t, fb.exchange.Load())
}

func TestEnsureBackendTokenExchanges(t *testing.T) {
	fb := newFakeBackend(t)
	r := newTestResolver(t, fb)

	actor := Actor{ID: "u", SessionID: "s", Credentials: Credentials{GraphQLToken: "gql"}}
	got, err := r.EnsureBackendToken(context.Background(), actor)
	require.NoError(t, err)
	assert.Equal(t, "rest-renewed", got.Credentials.RESTToken)
	assert.Equal(t, int64(1), fb.exchange.Load())

	// The renewed bundle lands in the cache.
	creds, ok := r.cache.Credentials("s")
	require.True(t, ok)
	assert.Equal(t, "rest-renewed", creds.RESTToken)
}

func TestEnsureBackendTokenIsBounded(t *testing.T) {
	fb := newFakeBackend(t)
	fb.exchangeHandler = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}
	r := newTestResolver(t, fb)

	actor := Actor{ID: "u", SessionID: "s", Credentials: Credentials{GraphQLToken: "gql"}}
	_, err := r.EnsureBackendToken(context.Background(), actor)
	assert.ErrorIs(t, err, ErrTokenUnavailable)
	assert.Equal(t, int64(3), fb.exchange.Load())
}

func TestEnsureBackendTokenWithoutCredentials(t *testing.T) {
	fb := newFakeBackend(t)
	r := newTestResolver(t, fb)

	_, err := r.EnsureBackendToken(context.Background(), Actor{ID: "u", SessionID: "s"})
	assert.ErrorIs(t, err, ErrTokenUnavailable)
	assert.Zero(t, fb.exchange.Load())
}

func TestEnsureBackendTokenReLogsInWithStoredSecret(t *testing.T) {
	fb := newFakeBackend(t)
	r := newTestResolver(t, fb)
	ctx := context.Background()

	actor, _, err := r.Login(ctx, "agent@finnbourse.dz", "s3cret")
	require.NoError(t, err)

	// Both issued tokens are gone; only the retained sign-in secret can
	// produce a fresh bundle.
	bare := Actor{ID: actor.ID, Role: actor.Role, SessionID: actor.SessionID}
	got, err := r.EnsureBackendToken(ctx, bare)
	require.NoError(t, err)
	assert.Equal(t, "rest-abc", got.Credentials.RESTToken)
	assert.Equal(t, "gql-def", got.Credentials.GraphQLToken)
	assert.Equal(t, int64(2), fb.login.Load(), "initial login plus one re-login")
	assert.Zero(t, fb.exchange.Load())

	creds, ok := r.cache.Credentials(actor.SessionID)
	require.True(t, ok)
	assert.Equal(t, "rest-abc", creds.RESTToken)
}

func TestEnsureBackendTokenFallsBackFromDeadGraphQLToken(t *testing.T) {
	fb := newFakeBackend(t)
	fb.exchangeHandler = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}
	r := newTestResolver(t, fb)
	ctx := context.Background()

	actor, _, err := r.Login(ctx, "agent@finnbourse.dz", "s3cret")
	require.NoError(t, err)
	r.StoreMenu(actor.SessionID, []string{"ordres/carnet"})

	bare := Actor{ID: actor.ID, Role: actor.Role, SessionID: actor.SessionID,
		Credentials: Credentials{GraphQLToken: "stale-gql"}}
	got, err := r.EnsureBackendToken(ctx, bare)
	require.NoError(t, err)
	assert.Equal(t, "rest-abc", got.Credentials.RESTToken)
	assert.Equal(t, "gql-def", got.Credentials.GraphQLToken, "re-login refreshes the GraphQL token too")
	assert.Equal(t, int64(1), fb.exchange.Load())
	assert.Equal(t, int64(2), fb.login.Load())

	// Falling back is not a revocation; the session survives.
	assert.True(t, r.HasStoredMenuData(actor.SessionID))
}

func TestEnsureBackendTokenPropagatesRateLimit(t *testing.T) {
	fb := newFakeBackend(t)
	fb.exchangeHandler = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}
	r := newTestResolver(t, fb)

	actor := Actor{ID: "u", SessionID: "s", Credentials: Credentials{GraphQLToken: "gql"}}
	_, err := r.EnsureBackendToken(context.Background(), actor)
	assert.True(t, gateway.IsKind(err, gateway.KindRateLimited), "err = %v", err)
	assert.Equal(t, int64(1), fb.exchange.Load(), "throttled exchange must not retry")
}

func TestEnsureBackendTokenRevoked(t *testing.T) {
	fb := newFakeBackend(t)
	fb.exchangeHandler = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}
	r := newTestResolver(t, fb)
	r.cache.StoreCredentials("s", Credentials{GraphQLToken: "gql"})

	actor := Actor{ID: "u", SessionID: "s", Credentials: Credentials{GraphQLToken: "gql"}}
	_, err := r.EnsureBackendToken(context.Background(), actor)
	assert.ErrorIs(t, err, ErrTokenRevoked)

	_, ok := r.cache.Credentials("s")
	assert.False(t, ok, "revocation must purge the cached bundle")
}

func TestValidateTokenIsRateLimited(t *testing.T) {
	fb := newFakeBackend(t)
	r := newTestResolver(t, fb)
	ctx := context.Background()

	actor := Actor{ID: "u", SessionID: "s", Credentials: Credentials{RESTToken: "rest"}}
	require.NoError(t, r.ValidateToken(ctx, actor))
	require.NoError(t, r.ValidateToken(ctx, actor))
	require.NoError(t, r.ValidateToken(ctx, actor))

	assert.Equal(t, int64(1), fb.validate.Load(), "only the first probe inside the interval hits the backend")
}

func TestValidateTokenRevocation(t *testing.T) {
	fb := newFakeBackend(t)
	fb.validateHandler = func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"valid": false, "reason": "concurrent login"})
	}
	r := newTestResolver(t, fb)
	r.cache.StoreCredentials("s", Credentials{RESTToken: "rest"})

	actor := Actor{ID: "u", SessionID: "s", Credentials: Credentials{RESTToken: "rest"}}
	err := r.ValidateToken(context.Background(), actor)
	assert.ErrorIs(t, err, ErrTokenRevoked)
	assert.ErrorContains(t, err, "concurrent login")

	_, ok := r.cache.Credentials("s")
	assert.False(t, ok)
}

func TestValidateTokenAdvisoryByDefault(t *testing.T) {
	fb := newFakeBackend(t)
	fb.validateHandler = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}

	relaxed := newTestResolver(t, fb)
	assert.NoError(t, relaxed.ValidateToken(context.Background(), Actor{SessionID: "a", Credentials: Credentials{RESTToken: "x"}}))

	strict := newTestResolver(t, fb, WithStrictValidation(true))
	assert.Error(t, strict.ValidateToken(context.Background(), Actor{SessionID: "b", Credentials: Credentials{RESTToken: "x"}}))
}
