// Package postgres builds the pgx connection pool shared by the stores and
// instruments every query with tracing, logging and metrics.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Config controls pool sizing and query logging.
type Config struct {
	URL      string
	MaxConns int32
	// SlowQuery is the duration at which successful queries are logged.
	// Zero logs every query.
	SlowQuery time.Duration
	// LogArgs includes bind arguments in query logs.
	LogArgs bool
}

// NewPool parses the URL, installs the query tracer, connects and pings.
func NewPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	if cfg.URL == "" {
		return nil, errors.New("postgres: database URL is empty")
	}
	pc, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	pc.ConnConfig.Tracer = newQueryTracer(otelpgx.NewTracer(), cfg.SlowQuery, cfg.LogArgs)

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return pool, nil
}
