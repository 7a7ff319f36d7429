package database

import (
	"context"
	"fmt"
	"time"

	"pointsystem/internal/config"
	"pointsystem/internal/repository/postgres"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// OpenPostgres connects through sqlx and creates the point tables if missing.
func OpenPostgres(ctx context.Context, cfg config.PostgresConfig) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("database: open postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database: ping postgres: %w", err)
	}

	if err := postgres.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
