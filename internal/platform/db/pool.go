package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const defaultAppName = "agenda-journal"

// PoolOptions tunes the journal pool. Zero values fall back to pgxpool's
// defaults, except AppName.
type PoolOptions struct {
	MaxConns int32
	MinConns int32
	AppName  string
}

// NewPool connects and pings the journal database before returning.
func NewPool(ctx context.Context, databaseURL string, opts PoolOptions, logger zerolog.Logger) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse journal database url: %w", err)
	}
	applyOptions(cfg, opts)

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create journal pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping journal database: %w", err)
	}

	logger.Info().
		Str("host", cfg.ConnConfig.Host).
		Str("database", cfg.ConnConfig.Database).
		Int32("max_conns", cfg.MaxConns).
		Msg("journal pool ready")
	return pool, nil
}

func applyOptions(cfg *pgxpool.Config, opts PoolOptions) {
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		cfg.MinConns = opts.MinConns
	}
	if cfg.MinConns > cfg.MaxConns {
		cfg.MinConns = cfg.MaxConns
	}
	// The journal sees short bursts around transitions and is idle otherwise.
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.HealthCheckPeriod = 30 * time.Second

	name := opts.AppName
	if name == "" {
		name = defaultAppName
	}
	cfg.ConnConfig.RuntimeParams["application_name"] = name
}
