package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ironledger/memberd/internal/adapters/httpapi"
	memcache "github.com/ironledger/memberd/internal/adapters/memory/membercache"
	memmemberbackend "github.com/ironledger/memberd/internal/adapters/memory/memberbackend"
	postgres "github.com/ironledger/memberd/internal/adapters/postgres"
	pgmemberbackend "github.com/ironledger/memberd/internal/adapters/postgres/memberbackend"
	"github.com/ironledger/memberd/internal/adapters/realtime"
	"github.com/ironledger/memberd/internal/app/members"
	"github.com/ironledger/memberd/internal/platform/auth/jwtverifier"
	platformclock "github.com/ironledger/memberd/internal/platform/clock"
	"github.com/ironledger/memberd/internal/platform/config"
	"github.com/ironledger/memberd/internal/platform/logging"
	backendport "github.com/ironledger/memberd/internal/ports/out/memberbackend"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("info").Fatalf("invalid config: %v", err)
	}
	log := logging.New(cfg.LogLevel)

	// Auth configuration:
	// - Production: verify bearer tokens from the hosted auth provider
	// - Local dev: set AUTH_MODE=dev to bypass JWT verification and use X-Debug-Subject
	var authMW func(http.Handler) http.Handler
	switch cfg.AuthMode {
	case "dev":
		authMW = httpapi.NewDevAuthMiddleware(cfg.DevSubject)
	default:
		authMW = httpapi.NewAuthMiddleware(jwtverifier.New(cfg.JWTSecret, cfg.JWTIssuer))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var backend backendport.Client
	switch cfg.StorageBackend {
	case "postgres":
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.PoolOptions{})
		if err != nil {
			log.Fatalf("postgres: %v", err)
		}
		defer pool.Close()
		backend = pgmemberbackend.NewBackend(pool)
	default:
		backend = memmemberbackend.NewBackend()
	}

	coh := members.NewCoherence(memcache.NewStore())
	svc := members.NewService(backend, coh, platformclock.NewSystemClock())

	hub := realtime.NewHub(coh, log)
	go func() {
		if err := hub.Run(ctx, backend); err != nil {
			log.WithError(err).Error("change feed stopped")
		}
	}()

	handler := httpapi.NewRouter(httpapi.NewServer(svc), httpapi.RouterOptions{
		AuthMiddleware: authMW,
		Logger:         log,
		CORSOrigins:    cfg.CORSOrigins,
		Changes:        hub,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Infof("api listening on :%s (storage=%s auth=%s)", cfg.Port, cfg.StorageBackend, cfg.AuthMode)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
