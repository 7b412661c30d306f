package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"promptlab/internal/config"
	"promptlab/internal/logging"
	"promptlab/internal/repository"
)

func main() {
	var configPath, file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load a YAML fixture of tags, prompts and workflows for one user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logger := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
			return run(cmd.Context(), cfg, logger, file)
		},
		SilenceUsage: true,
	}
	cmd.Flags().StringVar(&configPath, "config", "", "config file")
	cmd.Flags().StringVarP(&file, "file", "f", "cmd/seed/seed.example.yaml", "seed fixture")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *logging.Logger, file string) error {
	in, err := os.Open(file)
	if err != nil {
		return err
	}
	defer in.Close()
	fixture, err := decodeFixture(in)
	if err != nil {
		return err
	}

	if cfg.Store.Driver == "memory" {
		return fmt.Errorf("seeding needs a persistent store; store.driver is %q", cfg.Store.Driver)
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL())
	if err != nil {
		return fmt.Errorf("failed to connect to DB: %w", err)
	}
	defer pool.Close()

	sum, err := newSeeder(repository.NewPostgresRepository(pool), logger).apply(ctx, fixture)
	if err != nil {
		return err
	}
	logger.Info("Seeding complete",
		"subject", fixture.Subject,
		"tags", sum.Tags,
		"prompts", sum.Prompts,
		"workflows", sum.Workflows,
		"steps", sum.Steps,
	)
	return nil
}
