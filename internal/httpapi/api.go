// Package httpapi exposes the order workflow, session and actor
// administration over HTTP, plus the passthrough proxy to the remote
// backend.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"finnbourse.org/internal/actors"
	"finnbourse.org/internal/obs"
	"finnbourse.org/internal/order"
	"finnbourse.org/internal/policy"
	"finnbourse.org/internal/session"
)

// ReadyProbe checks readiness dependencies (e.g. the order database).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Options wires the API dependencies.
type Options struct {
	Resolver    *session.Resolver
	Workflow    *order.Workflow
	Actors      *actors.Service
	Policy      *policy.Table
	ReadyProbe  ReadyProbe
	Version     string
	ProxyTarget string
	ProxyClient *http.Client
	CallbackURL string
}

// API is the HTTP layer.
type API struct {
	router      chi.Router
	resolver    *session.Resolver
	workflow    *order.Workflow
	actors      *actors.Service
	policy      *policy.Table
	readyProbe  ReadyProbe
	version     string
	proxyTarget string
	proxyClient *http.Client
	callbackURL string
}

// New assembles the router with the full middleware chain.
func New(opts Options) *API {
	a := &API{
		resolver:    opts.Resolver,
		workflow:    opts.Workflow,
		actors:      opts.Actors,
		policy:      opts.Policy,
		readyProbe:  opts.ReadyProbe,
		version:     opts.Version,
		proxyTarget: opts.ProxyTarget,
		proxyClient: opts.ProxyClient,
		callbackURL: opts.CallbackURL,
	}
	if a.proxyClient == nil {
		a.proxyClient = &http.Client{Timeout: 15 * time.Second}
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logging)
	r.Use(SecurityHeaders)
	r.Use(RateLimit(20, 10))
	r.Use(MaxBodyBytes(1 << 20))

	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Ready)
	r.Handle("/metrics", obs.Handler())

	r.Post("/v1/auth/login", a.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(a.withAuth)

		r.Post("/v1/auth/logout", a.handleLogout)
		r.Get("/v1/session", a.handleSession)
		r.Get("/v1/policy/pages", a.handlePolicyPages)

		r.Route("/v1/orders", func(r chi.Router) {
			r.Post("/", a.createOrder)
			r.Get("/", a.listOrders)
			r.Get("/{id}", a.getOrder)
			r.Get("/{id}/history", a.orderHistory)
			r.Post("/{id}/transition", a.transitionOrder)
		})

		r.Route("/v1/actors", func(r chi.Router) {
			r.Post("/", a.createActor)
			r.Get("/", a.listActors)
			r.Get("/{id}", a.getActor)
			r.Patch("/{id}", a.updateActor)
			r.Delete("/{id}", a.deleteActor)
		})

		r.HandleFunc("/api/backend/*", a.proxyBackend)
	})

	a.router = r
	return a
}

// Handler returns the instrumented root handler.
func (a *API) Handler() http.Handler {
	return obs.Instrument(a.router)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "finnbourse-core",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}
