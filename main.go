package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"civicgpt/tax-advisor/backend"
	"civicgpt/tax-advisor/config"
	"civicgpt/tax-advisor/connectivity"
	"civicgpt/tax-advisor/feed"
	"civicgpt/tax-advisor/handlers"
	"civicgpt/tax-advisor/middleware"
	"civicgpt/tax-advisor/orchestrator"
	"civicgpt/tax-advisor/routes"
	"civicgpt/tax-advisor/supabase"
)

func main() {
	config.LoadEnv()

	cfg, err := config.Load()
	if err != nil {
		config.Logger.Fatal("Invalid configuration: ", err)
	}
	config.InitLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := openDeps(ctx, cfg)
	if err != nil {
		config.Logger.Fatal("Failed to initialise dependencies: ", err)
	}
	defer deps.Close()

	sessions := feed.NewPublishingStore(deps.sessions, deps.notifier, config.Component("feed"))

	client := backend.NewClient(cfg.BackendURL, cfg.BackendTimeout, config.Component("backend"))
	presence := connectivity.NewPresence(cfg.PresenceTTL)
	monitor := connectivity.NewMonitor(client, cfg.HealthRetryDelay, presence.SignedIn, config.Component("connectivity"))
	defer monitor.Stop()

	go monitor.Check(ctx)
	if cfg.HealthInterval > 0 {
		go monitor.Run(ctx, cfg.HealthInterval)
	}

	orchLog := config.Component("orchestrator")
	h := handlers.New(handlers.Deps{
		Sessions:       sessions,
		Documents:      deps.documents,
		Uploader:       orchestrator.NewUploader(sessions, deps.blobs, client, orchestrator.NewReconciler(sessions, orchLog), cfg.SignedURLTTL, orchLog),
		Asker:          orchestrator.NewAsker(sessions, client, orchLog),
		Feed:           feed.New(sessions, deps.notifier, cfg.FeedPollInterval, config.SessionListLimit, config.Component("feed")),
		Monitor:        monitor,
		Presence:       presence,
		Vectors:        client,
		MaxUploadBytes: cfg.MaxUploadBytes,
		SessionLimit:   config.SessionListLimit,
		DocumentLimit:  config.DocumentListLimit,
	})

	verifier := supabase.NewTokenVerifier(cfg.SupabaseJWTSecret)
	if !verifier.Verifies() {
		config.Logger.Warn("SUPABASE_JWT_SECRET is not set, access tokens are not verified")
	}
	auth := middleware.AuthMiddleware(verifier, presence, func(ctx context.Context, userID string) {
		// a fresh sign-in re-checks the backend right away
		go monitor.Check(context.WithoutCancel(ctx))
	})

	mux := http.NewServeMux()
	routes.RegisterAllRoutes(mux, h, auth)
	if deps.blobServer != nil {
		mux.Handle("GET /blobs/{key}", deps.blobServer)
	}

	handler := middleware.Chain(
		middleware.RecoverMiddleware,
		middleware.RequestIDMiddleware,
		middleware.LoggingMiddleware,
		middleware.CORSMiddleware(cfg.AllowedOrigins),
	)(mux)

	// Requests, event streams included, end with the process context.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		config.Logger.Infof("Server is running on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			config.Logger.Fatal("Server failed: ", err)
		}
	}()

	<-ctx.Done()
	config.Logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		config.Logger.Error("Graceful shutdown failed: ", err)
	}
}
