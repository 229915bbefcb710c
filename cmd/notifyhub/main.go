// Package main is the CLI entrypoint for notifyhub. It provides subcommands
// for running the server (serve), managing database migrations (migrate),
// seeding demo data (seed), and printing version information (version). The
// serve command loads configuration, connects to PostgreSQL, NATS, and
// Redis, runs pending migrations, starts the HTTP API server, the socket
// service, the channel workers, and the reaper, and handles graceful
// shutdown on SIGINT/SIGTERM.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/amityvox/notifyhub/internal/api"
	"github.com/amityvox/notifyhub/internal/auth"
	"github.com/amityvox/notifyhub/internal/balancer"
	"github.com/amityvox/notifyhub/internal/config"
	"github.com/amityvox/notifyhub/internal/emaildelivery"
	"github.com/amityvox/notifyhub/internal/events"
	"github.com/amityvox/notifyhub/internal/models"
	"github.com/amityvox/notifyhub/internal/orchestrator"
	"github.com/amityvox/notifyhub/internal/push"
	"github.com/amityvox/notifyhub/internal/queue"
	"github.com/amityvox/notifyhub/internal/ratelimit"
	"github.com/amityvox/notifyhub/internal/reaper"
	"github.com/amityvox/notifyhub/internal/socket"
	"github.com/amityvox/notifyhub/internal/store"
	"github.com/amityvox/notifyhub/internal/telemetry"
	"github.com/amityvox/notifyhub/internal/tokens"
	"github.com/amityvox/notifyhub/internal/workers"
)

// Build-time variables set via ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		if err := runServe(); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	case "migrate":
		if err := runMigrate(); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	case "seed":
		if err := runSeed(); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	case "version":
		runVersion()
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("notifyhub — Multi-Channel Notification Fan-Out Service")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  notifyhub <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve     Start the notifyhub server")
	fmt.Println("  migrate   Run database migrations")
	fmt.Println("  seed      Insert demo business entities for local testing")
	fmt.Println("  version   Print version information")
	fmt.Println("  help      Show this help message")
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println("  Config file:  notifyhub.toml (or set NOTIFYHUB_CONFIG_PATH)")
	fmt.Println("  Env prefix:   NOTIFYHUB_ (e.g. NOTIFYHUB_DATABASE_URL)")
}

// runServe starts the full notifyhub server: loads config, connects to all
// services, runs migrations, and starts the HTTP API, channel workers,
// socket service, reaper, and (when configured) the load balancer.
func runServe() error {
	logger := setupLogger("info", "json")
	logger.Info("starting notifyhub", slog.String("version", version), slog.String("commit", commit))

	cfgPath := configPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger = setupLogger(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("configuration loaded", slog.String("path", cfgPath))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.New(ctx, cfg.Database.URL, cfg.Database.MaxConnections, logger)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	if err := store.MigrateUp(cfg.Database.URL, logger); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	bus, err := events.New(cfg.NATS.URL, logger)
	if err != nil {
		return fmt.Errorf("connecting to NATS: %w", err)
	}
	defer bus.Close()
	if err := bus.EnsureStreams(); err != nil {
		return fmt.Errorf("ensuring NATS streams: %w", err)
	}

	queueClient, err := queue.NewClient(cfg.Cache.URL, cfg.Queue)
	if err != nil {
		return fmt.Errorf("connecting to queue substrate: %w", err)
	}
	defer queueClient.Close()
	topology := queue.NewTopology(cfg.Queue)

	limiter, err := ratelimit.New(cfg.Cache.URL)
	if err != nil {
		return fmt.Errorf("connecting rate limiter: %w", err)
	}
	defer limiter.Close()

	sessionDuration, err := cfg.Auth.SessionDurationParsed()
	if err != nil {
		return fmt.Errorf("parsing session duration: %w", err)
	}
	authSvc := auth.New(sessionDuration)

	mailer := emaildelivery.New(cfg.SMTP)

	var pushClient *push.Client
	if cfg.FCM.ProjectID != "" {
		pushClient, err = push.New(ctx, cfg.FCM)
		if err != nil {
			logger.Warn("push client unavailable, push channel disabled", slog.String("error", err.Error()))
		} else {
			logger.Info("push client ready", slog.String("project_id", cfg.FCM.ProjectID))
		}
	}

	tokenRegistry := tokens.New(db, logger)

	hub := socket.NewHub(logger)
	go hub.Run(ctx)
	socketSvc, err := socket.NewService(hub, bus, db, cfg.Instance.ID, logger)
	if err != nil {
		return fmt.Errorf("starting socket service: %w", err)
	}

	registry := prometheus.NewRegistry()
	telemetryRecorder := telemetry.New(registry, logger)

	orch := orchestrator.New(db, queueClient, logger)

	workerMgr, err := workers.New(cfg.Cache.URL, cfg.Queue, workers.Deps{
		Repo:        db,
		QueueClient: queueClient,
		Topology:    topology,
		Mailer:      mailer,
		Push:        pushClient,
		Tokens:      tokenRegistry,
		Sockets:     socketSvc,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("building worker manager: %w", err)
	}
	go func() {
		if err := workerMgr.Run(); err != nil {
			logger.Error("worker manager stopped", slog.String("error", err.Error()))
		}
	}()

	reap := reaper.New(cfg.Reaper, tokenRegistry, db, logger)
	if err := reap.Start(); err != nil {
		return fmt.Errorf("starting reaper: %w", err)
	}
	defer reap.Stop()

	srv := api.NewServer(api.Deps{
		Store:        db,
		Config:       cfg,
		AuthService:  authSvc,
		Orchestrator: orch,
		Tokens:       tokenRegistry,
		Queue:        queueClient,
		EventBus:     bus,
		Mailer:       mailer,
		Push:         pushClient,
		Telemetry:    telemetryRecorder,
		Registry:     registry,
		Limiter:      limiter,
		Sockets:      socketSvc,
		InstanceID:   cfg.Instance.ID,
		Version:      version,
		Logger:       logger,
	})

	var bal *balancer.Balancer
	if len(cfg.Balancer.Instances) > 0 {
		bal, err = balancer.New(cfg.Balancer, logger)
		if err != nil {
			return fmt.Errorf("building balancer: %w", err)
		}
	}

	errCh := make(chan error, 2)

	go func() {
		if err := srv.Start(); err != nil {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var balSrv *http.Server
	if bal != nil {
		go func() {
			if err := bal.HealthCheck(ctx); err != nil {
				logger.Error("balancer health check loop stopped", slog.String("error", err.Error()))
			}
		}()
		balSrv = &http.Server{Addr: cfg.Balancer.Listen, Handler: http.HandlerFunc(bal.ServeHTTP)}
		go func() {
			if err := balSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- fmt.Errorf("balancer: %w", err)
			}
		}()
		logger.Info("balancer listening", slog.String("addr", cfg.Balancer.Listen))
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if balSrv != nil {
		if err := balSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("balancer shutdown error", slog.String("error", err.Error()))
		}
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
	}
	workerMgr.Shutdown()

	logger.Info("notifyhub stopped")
	return nil
}

func runMigrate() error {
	logger := setupLogger("info", "text")

	cfgPath := configPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	action := "up"
	if len(os.Args) >= 3 {
		action = os.Args[2]
	}

	switch action {
	case "up":
		return store.MigrateUp(cfg.Database.URL, logger)
	case "down":
		return store.MigrateDown(cfg.Database.URL, logger)
	case "status":
		v, dirty, err := store.MigrateStatus(cfg.Database.URL)
		if err != nil {
			return err
		}
		fmt.Printf("Migration version: %d\n", v)
		fmt.Printf("Dirty: %v\n", dirty)
		return nil
	default:
		return fmt.Errorf("unknown migrate action: %s (use: up, down, status)", action)
	}
}

// runSeed inserts a handful of demo business entities (one signup, one
// login, and one purchase) for exercising the API and live-view dashboard without a real upstream
// integration.
func runSeed() error {
	logger := setupLogger("info", "text")

	cfgPath := configPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx := context.Background()
	db, err := store.New(ctx, cfg.Database.URL, cfg.Database.MaxConnections, logger)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	signup := &models.Signup{
		ID: models.NewULID(), UserID: "demo-user-1", Username: "demo", Email: "demo@example.com",
		WelcomeEmail: models.MirrorSummary{Status: models.StatusPending}, CreatedAt: now,
	}
	if err := db.CreateSignup(ctx, signup); err != nil {
		return fmt.Errorf("seeding signup: %w", err)
	}

	login := &models.Login{
		ID: models.NewULID(), UserID: "demo-user-1", IPAddress: "127.0.0.1",
		LoginAlertEmail:        models.MirrorSummary{Status: models.StatusPending},
		LoginInAppNotification: models.MirrorSummary{Status: models.StatusPending},
		CreatedAt:              now,
	}
	if err := db.CreateLogin(ctx, login); err != nil {
		return fmt.Errorf("seeding login: %w", err)
	}

	purchase := &models.Purchase{
		ID: models.NewULID(), UserID: "demo-user-1", OrderID: "demo-order-1", TotalAmount: 42.00, Currency: "USD",
		Items:                    []models.PurchaseItem{{SKU: "demo-sku", Quantity: 1, Price: 42.00}},
		PurchasePushNotification: models.MirrorSummary{Status: models.StatusPending},
		CreatedAt:                now,
	}
	if err := db.CreatePurchase(ctx, purchase); err != nil {
		return fmt.Errorf("seeding purchase: %w", err)
	}

	fmt.Printf("Seeded signup %s, login %s, purchase %s\n", signup.ID, login.ID, purchase.ID)
	return nil
}

func runVersion() {
	fmt.Printf("notifyhub %s\n", version)
	fmt.Printf("  commit:     %s\n", commit)
	fmt.Printf("  built:      %s\n", buildDate)
}

func configPath() string {
	if p := os.Getenv("NOTIFYHUB_CONFIG_PATH"); p != "" {
		return p
	}
	return "notifyhub.toml"
}

func setupLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
