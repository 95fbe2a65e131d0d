package main

import (
	"context"
	_ "embed"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/voxagent/billing/internal/config"
	"github.com/voxagent/billing/internal/logger"
	"github.com/voxagent/billing/internal/postgres"
)

//go:embed schema.sql
var schema string

// default provider catalog, inserted once with -seed
const seedProviders = `
INSERT INTO providers (id, name, type, unit, cost_per_unit, is_active)
VALUES
    ('prov_deepgram_nova', 'Deepgram Nova', 'stt', 'second', 0.0000717, true),
    ('prov_elevenlabs', 'ElevenLabs', 'tts', 'character', 0.00018, true),
    ('prov_openai_gpt4o_mini', 'OpenAI GPT-4o mini', 'llm', 'token', 0.0000006, true),
    ('prov_openai_embedding_small', 'OpenAI text-embedding-3-small', 'embedding', 'token', 0.00000002, true)
ON CONFLICT (id) DO NOTHING`

func main() {
	dryRun := flag.Bool("dry-run", false, "Print migration SQL without executing it")
	seed := flag.Bool("seed", false, "Insert the default provider catalog")
	flag.Parse()

	if *dryRun {
		fmt.Println(schema)
		return
	}

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logger.NewLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	logger.Infow("Connecting to database", "host", cfg.Postgres.Host)
	db, err := postgres.NewDB(cfg, logger)
	if err != nil {
		logger.Fatalw("Failed to connect to postgres", "error", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Info("Running database migrations...")
	err = db.WithTx(ctx, func(ctx context.Context) error {
		q := db.GetQuerier(ctx)
		if _, err := q.ExecContext(ctx, schema); err != nil {
			return err
		}
		if *seed {
			logger.Info("Seeding provider catalog")
			if _, err := q.ExecContext(ctx, seedProviders); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		logger.Fatalw("Failed to run migrations", "error", err)
	}

	logger.Info("Migrations completed successfully")
}
