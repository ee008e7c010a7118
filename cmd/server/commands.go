package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"minister/internal/platform/config"
	"minister/internal/platform/logger"
	"minister/internal/platform/postgres"
)

func newRootCommand() *cobra.Command {
	var configDir string
	root := &cobra.Command{
		Use:          "minister",
		Short:        "Minister appointment scheduling service",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configDir, "config-dir", "", "directory containing config.yaml")

	loadConfig := func() (config.Config, error) {
		if configDir != "" {
			return config.Load(configDir)
		}
		return config.Load()
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API and the outbox relay",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer stop()
				return serve(ctx, cfg, logger.New(cfg.Log.Level, cfg.Log.Format))
			},
		},
		&cobra.Command{
			Use:   "schema",
			Short: "Apply the PostgreSQL schema and exit",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				return applySchema(cmd.Context(), cfg)
			},
		},
	)
	return root
}

func applySchema(ctx context.Context, cfg config.Config) error {
	if cfg.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required to apply the schema")
	}
	db, err := postgres.Open(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db, cfg.Booking.DefaultMode); err != nil {
		return err
	}
	fmt.Println("schema applied")
	return nil
}
