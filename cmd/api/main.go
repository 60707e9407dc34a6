package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/inkpress/inkpress-backend/internal/api"
	"github.com/inkpress/inkpress-backend/internal/audit"
	"github.com/inkpress/inkpress-backend/internal/config"
	"github.com/inkpress/inkpress-backend/internal/log"
	"github.com/inkpress/inkpress-backend/internal/metrics"
	"github.com/inkpress/inkpress-backend/internal/monitor"
	"github.com/inkpress/inkpress-backend/internal/notify"
	"github.com/inkpress/inkpress-backend/internal/repository"
	"github.com/inkpress/inkpress-backend/internal/scheduler"
	"github.com/inkpress/inkpress-backend/internal/store"
	"github.com/inkpress/inkpress-backend/internal/ws"
	"github.com/robfig/cron/v3"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger, err := log.NewSugar(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Infow("Starting inkpress API server",
		"env", cfg.Env,
		"addr", cfg.HTTPAddr,
	)

	// Setup metrics
	metricsObj, metricsHandler, err := metrics.Setup("inkpress-api")
	if err != nil {
		logger.Fatalw("Failed to setup metrics", "error", err)
	}

	// Connect to Postgres
	db, err := sql.Open("pgx", cfg.Database.PostgresDSN)
	if err != nil {
		logger.Fatalw("Failed to open database", "error", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		logger.Fatalw("Database ping failed", "error", err)
	}
	logger.Infow("Database connection established")

	// Setup cache (falls back to in-memory when Redis is down)
	var cache *store.Cache
	if cfg.Cache.RedisAddr == "" {
		cache = store.NewMemoryCache(logger)
	} else {
		cache, err = store.NewCache(cfg.Cache.RedisAddr, logger)
		if err != nil {
			logger.Fatalw("Failed to setup cache", "error", err)
		}
	}
	defer cache.Close()

	repo := repository.NewRepository(db, logger)
	auditor := audit.NewRecorder(repo, logger)

	// Mailer for admin alerts
	var mailer notify.Mailer
	if cfg.Mail.Enabled {
		mailer, err = notify.NewSMTPMailer(cfg.Mail, logger)
		if err != nil {
			logger.Fatalw("Failed to setup mailer", "error", err)
		}
	} else {
		mailer = notify.NewNoopMailer(logger)
	}

	// Live alert feed for the admin panel
	hub := ws.NewHub(logger)
	hubCtx, hubCancel := context.WithCancel(context.Background())
	defer hubCancel()
	go hub.Run(hubCtx)

	notifier := notify.NewNotifier(repo, mailer, hub, logger)
	announcer := notify.NewPublishAnnouncer(cache, logger)

	// Scheduler engine shared by all trigger surfaces
	engine := scheduler.NewEngine(repo, repo, announcer, logger, metricsObj, scheduler.EngineConfig{
		Cooldown:      cfg.Scheduler.Cooldown,
		RetryAttempts: cfg.Scheduler.RetryAttempts,
		RetryBackoff:  cfg.Scheduler.RetryBackoff,
	})

	mon := monitor.New(repo, notifier, logger, metricsObj, monitor.Config{
		Cooldown:   cfg.Monitor.Cooldown,
		OverdueLag: cfg.Scheduler.OverdueLag,
	})

	// Optional in-process cron for deployments without an external trigger
	if cfg.Cron.Enabled {
		c := cron.New()
		_, err := c.AddFunc(cfg.Cron.Spec, func() {
			runCtx, runCancel := context.WithTimeout(context.Background(), time.Minute)
			defer runCancel()
			if _, err := engine.RunWithRetry(runCtx, "cron"); err != nil {
				logger.Errorw("In-process cron run failed", "error", err)
			}
		})
		if err != nil {
			logger.Fatalw("Invalid cron spec", "spec", cfg.Cron.Spec, "error", err)
		}
		c.Start()
		defer c.Stop()
		logger.Infow("In-process cron enabled", "spec", cfg.Cron.Spec)
	}

	// Setup API handler and middleware
	handler := api.NewHandler(engine, mon, repo, notifier, auditor, hub, cache, cfg, logger, metricsObj)
	mw := api.NewMiddleware(repo, logger, metricsObj)

	router := handler.Routes(mw, cfg.Security.CORSAllowedOrigins, cfg.Security.RateLimitRPM)

	// Add metrics endpoint
	router.Handle("/metrics", metricsHandler)

	// Setup HTTP server
	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	serverErrors := make(chan error, 1)
	go func() {
		logger.Infow("API server starting", "addr", server.Addr)
		serverErrors <- server.ListenAndServe()
	}()

	// Wait for interrupt signal
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Fatalw("Server startup failed", "error", err)
	case sig := <-shutdown:
		logger.Infow("Shutdown signal received", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Errorw("Graceful shutdown failed", "error", err)
			server.Close()
		}

		logger.Infow("Server stopped")
	}
}
