// Package session resolves the acting principal for a request: session
// token parsing, backend credential resolution with a bounded retry
// budget, rate-limited token validation and forced sign-out with an
// atomic purge of locally cached state.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"

	"finnbourse.org/internal/gateway"
	"finnbourse.org/internal/ids"
	"finnbourse.org/internal/obs"
	"finnbourse.org/internal/policy"
)

const (
	issuer            = "finnbourse"
	defaultSessionTTL = 8 * time.Hour

	// refreshErrorMarker mirrors the backend signal meaning the refresh
	// token chain is broken and the session must be terminated.
	refreshErrorMarker = "RefreshAccessTokenError"

	// maxTokenAttempts bounds backend re-authentication. Surfacing
	// ErrTokenUnavailable beats retrying forever against a failing backend.
	maxTokenAttempts = 3

	// validateInterval caps backend token validation to one probe per
	// session per interval.
	validateInterval = 5 * time.Minute
)

type sessionClaims struct {
	Role           string `json:"role"`
	OrganizationID string `json:"org,omitempty"`
	SessionID      string `json:"sid"`
	RefreshError   string `json:"refresh_error,omitempty"`
	jwt.RegisteredClaims
}

// Resolver resolves actors from session tokens and manages their backend
// credential lifecycle.
type Resolver struct {
	gw         *gateway.Client
	cache      Cache
	secret     []byte
	sessionTTL time.Duration
	strict     bool
	now        func() time.Time

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// ResolverOption configures Resolver behavior.
type ResolverOption func(*Resolver)

// WithSessionTTL overrides the session token lifetime.
func WithSessionTTL(ttl time.Duration) ResolverOption {
	return func(r *Resolver) {
		if ttl > 0 {
			r.sessionTTL = ttl
		}
	}
}

// WithStrictValidation makes periodic token-validation failures fatal
// (forcing a redirect) instead of advisory.
func WithStrictValidation(strict bool) ResolverOption {
	return func(r *Resolver) { r.strict = strict }
}

// WithClock overrides the time source (tests).
func WithClock(fn func() time.Time) ResolverOption {
	return func(r *Resolver) {
		if fn != nil {
			r.now = fn
		}
	}
}

// NewResolver constructs a Resolver over the backend gateway and a session
// cache.
func NewResolver(gw *gateway.Client, cache Cache, secret string, opts ...ResolverOption) (*Resolver, error) {
	if gw == nil {
		return nil, errors.New("session: gateway is required")
	}
	if cache == nil {
		return nil, errors.New("session: cache is required")
	}
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("session: secret is required")
	}
	r := &Resolver{
		gw:         gw,
		cache:      cache,
		secret:     []byte(secret),
		sessionTTL: defaultSessionTTL,
		now:        time.Now,
		limiters:   make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

type loginResponse struct {
	AccessToken  string `json:"access_token"`
	GraphQLToken string `json:"graphql_token"`
	User         struct {
		ID             string `json:"id"`
		Role           string `json:"role"`
		OrganizationID string `json:"organization_id"`
	} `json:"user"`
}

// Login authenticates against the backend and mints a session token for
// the returned principal. The backend credential bundle is cached under
// the new session; a second login for the same actor invalidates the
// previous bundle backend-side.
func (r *Resolver) Login(ctx context.Context, email, password string) (Actor, string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return Actor{}, "", ErrUnauthenticated
	}
	raw, err := r.gw.Do(ctx, http.MethodPost, "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, gateway.Credentials{})
	if err != nil {
		if gateway.IsKind(err, gateway.KindUnauthorized) {
			return Actor{}, "", ErrUnauthenticated
		}
		return Actor{}, "", err
	}
	var resp loginResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Actor{}, "", fmt.Errorf("session: malformed login response: %w", err)
	}
	role, err := policy.ParseRole(resp.User.Role)
	if err != nil {
		return Actor{}, "", fmt.Errorf("session: %w", err)
	}

	actor := Actor{
		ID:             resp.User.ID,
		Role:           role,
		OrganizationID: resp.User.OrganizationID,
		SessionID:      ids.New(),
		Credentials: Credentials{
			RESTToken:    resp.AccessToken,
			GraphQLToken: resp.GraphQLToken,
		},
	}
	token, err := r.mint(actor, "")
	if err != nil {
		return Actor{}, "", err
	}
	r.cache.StoreCredentials(actor.SessionID, actor.Credentials)
	r.cache.StoreLogin(actor.SessionID, LoginCredentials{Email: email, Password: password})
	return actor, token, nil
}

func (r *Resolver) mint(actor Actor, refreshError string) (string, error) {
	now := r.now().UTC()
	claims := sessionClaims{
		Role:           string(actor.Role),
		OrganizationID: actor.OrganizationID,
		SessionID:      actor.SessionID,
		RefreshError:   refreshError,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   actor.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(r.sessionTTL)),
			ID:        ids.New(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(r.secret)
	if err != nil {
		return "", fmt.Errorf("session: sign token: %w", err)
	}
	return signed, nil
}

// MarkRefreshFailure re-mints the actor's session token carrying the
// refresh-failure marker, so the next ResolveActor forces sign-out.
func (r *Resolver) MarkRefreshFailure(actor Actor) (string, error) {
	return r.mint(actor, refreshErrorMarker)
}

// ResolveActor inspects the session token. An absent or unverifiable
// token yields ErrUnauthenticated. A token carrying the refresh-failure
// marker yields ErrSessionInvalid after purging all locally cached state
// for the session.
func (r *Resolver) ResolveActor(ctx context.Context, token string) (Actor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Actor{}, ErrUnauthenticated
	}
	parsed, err := jwt.ParseWithClaims(token, &sessionClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrUnauthenticated
		}
		return r.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return r.now() }))
	if err != nil {
		return Actor{}, ErrUnauthenticated
	}
	claims, ok := parsed.Claims.(*sessionClaims)
	if !ok || !parsed.Valid || claims.Issuer != issuer || strings.TrimSpace(claims.Subject) == "" {
		return Actor{}, ErrUnauthenticated
	}

	if claims.RefreshError != "" {
		r.ForceSignOut(claims.SessionID, "refresh_failure")
		return Actor{}, ErrSessionInvalid
	}

	role, err := policy.ParseRole(claims.Role)
	if err != nil {
		return Actor{}, ErrUnauthenticated
	}

	actor := Actor{
		ID:             claims.Subject,
		Role:           role,
		OrganizationID: claims.OrganizationID,
		SessionID:      claims.SessionID,
	}
	if creds, ok := r.cache.Credentials(claims.SessionID); ok {
		actor.Credentials = creds
	}
	return actor, nil
}

type exchangeResponse struct {
	AccessToken string `json:"access_token"`
}

// EnsureBackendToken guarantees the actor carries a REST token. A missing
// token is re-obtained by exchanging the GraphQL token, falling back to
// re-login with the retained sign-in secret when no exchangeable token is
// left or the backend no longer accepts it; at most maxTokenAttempts calls
// are made in total before surfacing ErrTokenUnavailable. Rate-limited
// backend responses propagate immediately so the caller can apply the
// cool-down behavior instead of retrying blindly.
func (r *Resolver) EnsureBackendToken(ctx context.Context, actor Actor) (Actor, error) {
	if actor.Credentials.RESTToken != "" {
		return actor, nil
	}

	var sources []func(context.Context) (Credentials, error)
	if actor.Credentials.GraphQLToken != "" {
		sources = append(sources, func(ctx context.Context) (Credentials, error) {
			return r.exchangeToken(ctx, actor.Credentials.GraphQLToken)
		})
	}
	if login, ok := r.cache.Login(actor.SessionID); ok {
		sources = append(sources, func(ctx context.Context) (Credentials, error) {
			return r.reLogin(ctx, login)
		})
	}
	if len(sources) == 0 {
		return Actor{}, fmt.Errorf("%w: no credentials to exchange", ErrTokenUnavailable)
	}

	var lastErr error
	idx := 0
	for attempt := 1; attempt <= maxTokenAttempts; attempt++ {
		creds, err := sources[idx](ctx)
		if err != nil {
			if gateway.IsKind(err, gateway.KindRateLimited) {
				return Actor{}, err
			}
			if gateway.IsKind(err, gateway.KindUnauthorized) {
				// A dead GraphQL token still leaves re-login; out of
				// sources means the session itself is revoked.
				if idx+1 >= len(sources) {
					r.ForceSignOut(actor.SessionID, "revoked")
					return Actor{}, ErrTokenRevoked
				}
				idx++
				lastErr = err
				continue
			}
			lastErr = err
			if idx+1 < len(sources) {
				idx++
			}
			continue
		}
		actor.Credentials.RESTToken = creds.RESTToken
		if creds.GraphQLToken != "" {
			actor.Credentials.GraphQLToken = creds.GraphQLToken
		}
		r.cache.StoreCredentials(actor.SessionID, actor.Credentials)
		return actor, nil
	}
	return Actor{}, fmt.Errorf("%w: %d attempts failed: %v", ErrTokenUnavailable, maxTokenAttempts, lastErr)
}

func (r *Resolver) exchangeToken(ctx context.Context, graphqlToken string) (Credentials, error) {
	raw, err := r.gw.Do(ctx, http.MethodPost, "/auth/exchange", map[string]string{
		"token": graphqlToken,
	}, gateway.Credentials{GraphQLToken: graphqlToken})
	if err != nil {
		return Credentials{}, err
	}
	var resp exchangeResponse
	if err := json.Unmarshal(raw, &resp); err != nil || resp.AccessToken == "" {
		return Credentials{}, errors.New("session: malformed exchange response")
	}
	return Credentials{RESTToken: resp.AccessToken}, nil
}

// reLogin re-runs the backend sign-in with the retained secret, yielding a
// fresh bundle for the same session.
func (r *Resolver) reLogin(ctx context.Context, login LoginCredentials) (Credentials, error) {
	raw, err := r.gw.Do(ctx, http.MethodPost, "/auth/login", map[string]string{
		"email":    login.Email,
		"password": login.Password,
	}, gateway.Credentials{})
	if err != nil {
		return Credentials{}, err
	}
	var resp loginResponse
	if err := json.Unmarshal(raw, &resp); err != nil || resp.AccessToken == "" {
		return Credentials{}, errors.New("session: malformed login response")
	}
	return Credentials{RESTToken: resp.AccessToken, GraphQLToken: resp.GraphQLToken}, nil
}

type validateResponse struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason"`
}

// ValidateToken probes the backend for token validity, at most once per
// validateInterval per session. A revoked token always forces sign-out;
// other failures are advisory unless strict validation is enabled.
func (r *Resolver) ValidateToken(ctx context.Context, actor Actor) error {
	if !r.limiter(actor.SessionID).Allow() {
		return nil
	}
	raw, err := r.gw.Do(ctx, http.MethodPost, "/auth/validate", map[string]string{
		"token": actor.Credentials.RESTToken,
	}, gateway.Credentials{RESTToken: actor.Credentials.RESTToken})
	if err != nil {
		if gateway.IsKind(err, gateway.KindRateLimited) {
			return err
		}
		if gateway.IsKind(err, gateway.KindUnauthorized) {
			r.ForceSignOut(actor.SessionID, "revoked")
			return ErrTokenRevoked
		}
		if r.strict {
			return err
		}
		return nil
	}
	var resp validateResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		if r.strict {
			return fmt.Errorf("session: malformed validate response: %w", err)
		}
		return nil
	}
	if !resp.Valid {
		r.ForceSignOut(actor.SessionID, "revoked")
		return fmt.Errorf("%w: %s", ErrTokenRevoked, resp.Reason)
	}
	return nil
}

// ForceSignOut purges every locally cached artifact of the session in one
// step and records the cause.
func (r *Resolver) ForceSignOut(sessionID, cause string) {
	if sessionID != "" {
		r.cache.Purge(sessionID)
	}
	r.mu.Lock()
	delete(r.limiters, sessionID)
	r.mu.Unlock()
	obs.ObserveForcedSignOut(cause)
}

// StoreMenu caches the resolved menu entries for the session.
func (r *Resolver) StoreMenu(sessionID string, items []string) {
	if sessionID == "" {
		return
	}
	r.cache.StoreMenu(sessionID, items)
}

// HasStoredMenuData reports whether cached menu state survives for the
// session; false after a purge.
func (r *Resolver) HasStoredMenuData(sessionID string) bool {
	return r.cache.HasMenuData(sessionID)
}

func (r *Resolver) limiter(sessionID string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	lim, ok := r.limiters[sessionID]
	if !ok {
		lim = rate.NewLimiter(rate.Every(validateInterval), 1)
		r.limiters[sessionID] = lim
	}
	return lim
}
