// Command addagent registers a new agent and prints its API key.
//
// Usage:
//
//	OPSDECK_STORAGE=postgres DATABASE_URL=postgres://... \
//	  go run ./scripts/addagent -name crawler -category ingest
//
// The key is printed exactly once; only its SHA-256 fingerprint is stored.
// There is no recovery path — if the key is lost, register a new agent.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/opsdeck/opsdeck/internal/auth"
	"github.com/opsdeck/opsdeck/internal/config"
	"github.com/opsdeck/opsdeck/internal/model"
	"github.com/opsdeck/opsdeck/internal/storage"
	"github.com/opsdeck/opsdeck/migrations"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	name := flag.String("name", "", "agent name (required)")
	category := flag.String("category", "general", "agent category shown on the dashboard")
	flag.Parse()

	if *name == "" {
		return fmt.Errorf("-name is required")
	}

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	var store storage.Store
	switch cfg.StorageDriver {
	case config.StoragePostgres:
		pg, err := storage.NewPostgres(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return fmt.Errorf("connect: %w", err)
		}
		if err := pg.RunMigrations(ctx, migrations.FS); err != nil {
			_ = pg.Close(ctx)
			return fmt.Errorf("migrate: %w", err)
		}
		store = pg
	case config.StorageDemo:
		store, err = storage.NewDemo(ctx, cfg.DemoPath, logger)
		if err != nil {
			return fmt.Errorf("open demo store: %w", err)
		}
	default:
		return fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
	defer func() { _ = store.Close(context.Background()) }()

	key, err := auth.GenerateAgentKey()
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}

	agent, err := store.CreateAgent(ctx, model.Agent{
		Name:           *name,
		Category:       *category,
		KeyFingerprint: auth.KeyFingerprint(key),
	})
	if err != nil {
		return fmt.Errorf("create agent: %w", err)
	}

	fmt.Printf("agent_id: %s\n", agent.ID)
	fmt.Printf("name:     %s\n", agent.Name)
	fmt.Printf("key:      %s\n", key)
	fmt.Println("\nStore the key now — it will not be shown again.")
	return nil
}
