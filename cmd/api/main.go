package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"finnbourse.org/internal/actors"
	"finnbourse.org/internal/config"
	"finnbourse.org/internal/gateway"
	"finnbourse.org/internal/httpapi"
	"finnbourse.org/internal/obs"
	"finnbourse.org/internal/order"
	orderpg "finnbourse.org/internal/order/pg"
	"finnbourse.org/internal/policy"
	"finnbourse.org/internal/session"
)

var version = "0.3.1"

func main() {
	obs.Init()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	table := policy.MustLoad()

	gw, err := gateway.New(cfg.BackendURL, cfg.RestAPIURL,
		gateway.WithTimeout(cfg.GatewayTimeout),
		gateway.WithDebug(cfg.Debug),
	)
	if err != nil {
		log.Fatalf("gateway: %v", err)
	}

	resolver, err := session.NewResolver(gw, session.NewMemoryCache(), cfg.SessionSecret)
	if err != nil {
		log.Fatalf("session: %v", err)
	}

	// Orders persist in Postgres when a DSN is configured; the in-memory
	// store otherwise keeps the service runnable for local work.
	var (
		store order.Store
		probe httpapi.ReadyProbe
	)
	if cfg.PostgresDSN != "" {
		pgStore, err := orderpg.Open(cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("open order store: %v", err)
		}
		defer pgStore.Close()
		store = pgStore
		probe = httpapi.ReadyProbe{DB: pgStore.DB()}
	} else {
		store = order.NewInMemory()
	}

	workflow, err := order.NewWorkflow(store, table)
	if err != nil {
		log.Fatalf("workflow: %v", err)
	}

	actorSvc, err := actors.NewService(actors.NewMemory())
	if err != nil {
		log.Fatalf("actors: %v", err)
	}

	api := httpapi.New(httpapi.Options{
		Resolver:    resolver,
		Workflow:    workflow,
		Actors:      actorSvc,
		Policy:      table,
		ReadyProbe:  probe,
		Version:     version,
		ProxyTarget: cfg.RestAPIURL,
		ProxyClient: &http.Client{Timeout: cfg.GatewayTimeout},
		CallbackURL: cfg.SessionCallbackURL,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting finnbourse-core %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}
