package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/sifan077/LinkShield/config"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const defaultConnMaxLifetime = 5 * time.Minute

// NewGorm opens the gorm handle used by the link and action event
// repositories. TranslateError maps unique violations to gorm.ErrDuplicatedKey.
func NewGorm(cfg config.PostgresConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(ConnString(cfg)), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Warn),
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: open gorm connection: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("postgres: retrieve sql db: %w", err)
	}

	lifetime := defaultConnMaxLifetime
	if cfg.MaxConnLifetime != "" {
		if d, err := time.ParseDuration(cfg.MaxConnLifetime); err == nil {
			lifetime = d
		}
	}
	sqlDB.SetConnMaxLifetime(lifetime)
	if cfg.MaxConns > 0 {
		// gorm shares the server with the pgx pool; keep it to half the budget.
		sqlDB.SetMaxOpenConns(max(int(cfg.MaxConns)/2, 1))
	}

	return db, nil
}

// AutoMigrate runs gorm schema migrations for models.
func AutoMigrate(ctx context.Context, db *gorm.DB, models ...any) error {
	if db == nil || len(models) == 0 {
		return nil
	}

	if err := db.WithContext(ctx).AutoMigrate(models...); err != nil {
		return fmt.Errorf("postgres: auto migrate: %w", err)
	}

	return nil
}
