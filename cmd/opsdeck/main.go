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

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/opsdeck/opsdeck/internal/auth"
	"github.com/opsdeck/opsdeck/internal/config"
	"github.com/opsdeck/opsdeck/internal/model"
	"github.com/opsdeck/opsdeck/internal/ratelimit"
	"github.com/opsdeck/opsdeck/internal/server"
	"github.com/opsdeck/opsdeck/internal/service/approvals"
	"github.com/opsdeck/opsdeck/internal/service/mutation"
	"github.com/opsdeck/opsdeck/internal/storage"
	"github.com/opsdeck/opsdeck/internal/telemetry"
	"github.com/opsdeck/opsdeck/migrations"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	level := slog.LevelInfo
	if os.Getenv("OPSDECK_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("opsdeck starting", "version", version, "port", cfg.Port, "storage", cfg.StorageDriver)

	// Initialize OpenTelemetry.
	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	// Open storage. The driver is an explicit choice; nothing is inferred
	// from which environment variables happen to be set.
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer func() { _ = store.Close(context.Background()) }()

	// Operator sessions.
	sessions, err := auth.NewSessionManager(cfg.SessionPrivateKeyPath, cfg.SessionPublicKeyPath, cfg.SessionTTL)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	// Seed the bootstrap operator if configured and missing.
	if err := seedOperator(ctx, store, cfg, logger); err != nil {
		return fmt.Errorf("seed operator: %w", err)
	}

	// Rate limiter.
	var limiter ratelimit.Limiter
	if cfg.RateLimitPerSecond > 0 {
		limiter = ratelimit.NewMemoryLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst)
		defer func() { _ = limiter.Close() }()
		logger.Info("rate limiting: memory (in-process token bucket)",
			"rps", cfg.RateLimitPerSecond, "burst", cfg.RateLimitBurst)
	} else {
		limiter = ratelimit.NoopLimiter{}
		logger.Info("rate limiting: disabled")
	}

	srv, err := server.New(server.ServerConfig{
		Store:               store,
		Verifier:            auth.NewAgentVerifier(store),
		Sessions:            sessions,
		MutationSvc:         mutation.New(store, logger),
		ApprovalSvc:         approvals.New(store, logger),
		Limiter:             limiter,
		Logger:              logger,
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		StorageDriver:       cfg.StorageDriver,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("opsdeck shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("opsdeck stopped")
	return nil
}

// openStore constructs the configured storage implementation. Postgres also
// runs the embedded migrations at startup; the demo store applies its schema
// on open.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (storage.Store, error) {
	switch cfg.StorageDriver {
	case config.StoragePostgres:
		pg, err := storage.NewPostgres(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, err
		}
		if err := pg.RunMigrations(ctx, migrations.FS); err != nil {
			_ = pg.Close(ctx)
			return nil, err
		}
		return pg, nil
	case config.StorageDemo:
		return storage.NewDemo(ctx, cfg.DemoPath, logger)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

// seedOperator creates the bootstrap operator account when configured and
// not already present.
func seedOperator(ctx context.Context, store storage.Store, cfg config.Config, logger *slog.Logger) error {
	if cfg.SeedOperatorEmail == "" {
		return nil
	}
	if _, err := store.GetOperatorByEmail(ctx, cfg.SeedOperatorEmail); err == nil {
		return nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	hash, err := auth.HashPassword(cfg.SeedOperatorPassword)
	if err != nil {
		return err
	}
	op, err := store.CreateOperator(ctx, model.Operator{
		Email:        cfg.SeedOperatorEmail,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	logger.Info("seeded operator", "operator_id", op.ID, "email", op.Email)
	return nil
}
