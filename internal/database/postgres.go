package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Seams for tests.
var (
	parsePGConfig = pgxpool.ParseConfig
	newPGPool     = pgxpool.NewWithConfig
	pingPGPool    = func(ctx context.Context, pool *pgxpool.Pool) error { return pool.Ping(ctx) }
	closePGPool   = func(pool *pgxpool.Pool) { pool.Close() }
)

// PoolSettings bounds the Postgres connection pool. Zero fields keep the
// defaults from DefaultPoolSettings.
type PoolSettings struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

var DefaultPoolSettings = PoolSettings{
	MaxConns:        25,
	MinConns:        5,
	MaxConnLifetime: time.Hour,
	MaxConnIdleTime: 30 * time.Minute,
}

type PostgresDB struct {
	Pool *pgxpool.Pool
}

func NewPostgresDB(dsn string) (*PostgresDB, error) {
	return NewPostgresDBWithSettings(dsn, DefaultPoolSettings)
}

func NewPostgresDBWithSettings(dsn string, settings PoolSettings) (*PostgresDB, error) {
	config, err := parsePGConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	applyPoolSettings(config, settings)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := newPGPool(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pingPGPool(ctx, pool); err != nil {
		closePGPool(pool)
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &PostgresDB{Pool: pool}, nil
}

func applyPoolSettings(config *pgxpool.Config, s PoolSettings) {
	d := DefaultPoolSettings
	if s.MaxConns > 0 {
		d.MaxConns = s.MaxConns
	}
	if s.MinConns > 0 {
		d.MinConns = s.MinConns
	}
	if s.MaxConnLifetime > 0 {
		d.MaxConnLifetime = s.MaxConnLifetime
	}
	if s.MaxConnIdleTime > 0 {
		d.MaxConnIdleTime = s.MaxConnIdleTime
	}
	if d.MinConns > d.MaxConns {
		d.MinConns = d.MaxConns
	}

	config.MaxConns = d.MaxConns
	config.MinConns = d.MinConns
	config.MaxConnLifetime = d.MaxConnLifetime
	config.MaxConnIdleTime = d.MaxConnIdleTime
	config.HealthCheckPeriod = time.Minute
}

func (db *PostgresDB) Close() {
	if db.Pool != nil {
		closePGPool(db.Pool)
	}
}

func (db *PostgresDB) Health(ctx context.Context) error {
	return pingPGPool(ctx, db.Pool)
}
