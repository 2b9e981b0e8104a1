package main

import (
	"context"

	"github.com/sifan077/LinkShield/internal/app/model"
	infraPostgres "github.com/sifan077/LinkShield/internal/infra/postgres"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// migrateCmd creates or updates the database schema
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigrate(cmd.Context())
	},
}

func runMigrate(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	gormDB, err := infraPostgres.NewGorm(cfg.Postgres)
	if err != nil {
		return err
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if err := infraPostgres.AutoMigrate(ctx, gormDB, &model.Link{}, &model.ActionEvent{}); err != nil {
		return err
	}

	log.Info("Database schema is up to date", zap.String("database", cfg.Postgres.Database))
	return nil
}
