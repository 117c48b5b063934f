// Hotel Retention Agent API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/retention-agent/internal/api"
	"github.com/ashureev/retention-agent/internal/approval"
	"github.com/ashureev/retention-agent/internal/audit"
	"github.com/ashureev/retention-agent/internal/config"
	"github.com/ashureev/retention-agent/internal/driver"
	"github.com/ashureev/retention-agent/internal/engine"
	"github.com/ashureev/retention-agent/internal/engine/enginetest"
	"github.com/ashureev/retention-agent/internal/logging"
	"github.com/ashureev/retention-agent/internal/metrics"
	"github.com/ashureev/retention-agent/internal/middleware"
	"github.com/ashureev/retention-agent/internal/notify"
	"github.com/ashureev/retention-agent/internal/orchestrator"
	"github.com/ashureev/retention-agent/internal/policy"
	"github.com/ashureev/retention-agent/internal/store"
	"github.com/ashureev/retention-agent/internal/telemetry"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.New(os.Stdout, cfg.Log.Format, cfg.Log.Level)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		slog.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped successfully")
}

//nolint:gocyclo // Startup wiring is intentionally sequential to keep dependency setup explicit.
func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "store", cfg.Store.Driver)

	if cfg.Telemetry.TracingEnabled {
		tp, err := telemetry.NewProvider("retention-agent", os.Stderr)
		if err != nil {
			return fmt.Errorf("initialize tracing: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				slog.Warn("Failed to flush traces", "error", err)
			}
		}()
	}

	classifier, err := policy.LoadFile(cfg.ToolPolicyPath)
	if err != nil {
		return fmt.Errorf("load tool policy: %w", err)
	}
	slog.Info("Tool policy loaded", "safe", classifier.SafeNames(), "sensitive", classifier.SensitiveNames())

	threads, err := store.Open(ctx, cfg.Store.StoreOptions())
	if err != nil {
		return fmt.Errorf("initialize thread store: %w", err)
	}
	defer func() {
		if closeErr := threads.Close(); closeErr != nil {
			slog.Error("Failed to close thread store", "error", closeErr)
		}
	}()
	if err := threads.Ping(ctx); err != nil {
		return fmt.Errorf("thread store health check: %w", err)
	}
	slog.Info("Thread store connected", "driver", cfg.Store.Driver)

	eng, err := newEngine(cfg.Engine, threads, logger)
	if err != nil {
		return err
	}
	defer eng.Close()

	var notifier notify.Notifier = notify.Noop{}
	if cfg.Notify.NATSURL != "" {
		pub, err := notify.NewNATSPublisher(notify.NATSConfig{URL: cfg.Notify.NATSURL, Subject: cfg.Notify.Subject})
		if err != nil {
			return fmt.Errorf("initialize approval notifications: %w", err)
		}
		notifier = pub
		slog.Info("Approval notifications enabled", "subject", pub.Subject(notify.EventRequiresAction))
	}
	defer func() {
		if err := notifier.Close(); err != nil {
			slog.Warn("Failed to close notifier", "error", err)
		}
	}()

	conversationLogger, err := audit.NewConversationLogger(audit.Config{
		Enabled:   cfg.ConversationLog.Enabled,
		Dir:       cfg.ConversationLog.Dir,
		QueueSize: cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize conversation logger: %w", err)
	}
	defer func() { _ = conversationLogger.Close() }()

	stepDriver := driver.New(threads, eng, classifier, driver.WithLogger(logger))
	controller := orchestrator.New(stepDriver, orchestrator.Config{
		Classifier:    classifier,
		MaxIterations: cfg.MaxAutoResumes,
		Notifier:      notifier,
		Logger:        logger,
	})
	gateway := approval.NewGateway(threads, controller,
		approval.WithClassifier(classifier),
		approval.WithAudit(conversationLogger),
		approval.WithLogger(logger),
	)

	chatHandler := api.NewChatHandler(gateway, approval.NewThreadID, logger)
	healthHandler := api.NewHealthHandler(threads, eng)
	limiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, 10*time.Minute)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(corsOrigins(cfg)))

	healthHandler.RegisterHealth(r)
	if cfg.Telemetry.MetricsEnabled {
		r.Handle("/metrics", metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.MaxBodyBytes(cfg.MaxRequestBodyBytes))
		if cfg.RateLimit.RPS > 0 {
			r.Use(limiter.Middleware)
		}
		chatHandler.RegisterRoutes(r)
	})

	// Requests run the whole resume loop synchronously, so the write timeout
	// must cover the engine timeout for every allowed advance.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.Engine.RequestTimeout*time.Duration(cfg.MaxAutoResumes) + 30*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		limiter.Run(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

func newEngine(cfg config.EngineConfig, threads store.ThreadStore, logger *slog.Logger) (engine.Engine, error) {
	if cfg.Mode == config.EngineModeDemo {
		slog.Warn("ENGINE_MODE=demo, using the built-in scripted retention engine")
		return enginetest.Demo(threads), nil
	}

	slog.Info("Connecting to reasoning engine via gRPC", "address", cfg.Addr)
	client, err := engine.NewGrpcClient(engine.GrpcClientConfig{
		Address:        cfg.Addr,
		ConnectTimeout: cfg.ConnectTimeout,
		RequestTimeout: cfg.RequestTimeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to reasoning engine: %w", err)
	}
	return engine.WithRetry(client, engine.RetryConfig{
		MaxAttempts: cfg.RetryAttempts,
		Backoff:     200 * time.Millisecond,
	}), nil
}

func corsOrigins(cfg *config.Config) []string {
	if origins := cfg.AllowedOrigins(); len(origins) > 0 {
		return origins
	}
	if cfg.IsDevelopment() {
		return []string{"*"}
	}
	return nil
}
