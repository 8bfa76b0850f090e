// Package store opens the profile repository selected by STORE_BACKEND.
package store

import (
	"context"
	"fmt"

	"github.com/darsh8000an/study-buddy-matcher/internal/config"
	"github.com/darsh8000an/study-buddy-matcher/internal/database"
	"github.com/darsh8000an/study-buddy-matcher/internal/logging"
	"github.com/darsh8000an/study-buddy-matcher/internal/services"
)

type HealthChecker interface {
	Health(ctx context.Context) error
}

// Backend is an open profile repository plus what callers need to report on
// and release it.
type Backend struct {
	Name    string
	Repo    services.ProfileRepository
	Checker HealthChecker
	close   func()
}

func (b *Backend) Close() {
	if b.close != nil {
		b.close()
	}
}

type Options struct {
	// Migrate applies pending SQL migrations before returning a Postgres
	// backend.
	Migrate bool
}

// Seams for tests.
var (
	openPostgres = openPostgresBackend
	openMongo    = openMongoBackend
)

func Open(ctx context.Context, cfg *config.Config, logger *logging.Logger, opts Options) (*Backend, error) {
	switch cfg.Store.Backend {
	case config.StorePostgres:
		return openPostgres(ctx, cfg, logger, opts)
	case config.StoreMongo:
		return openMongo(ctx, cfg, logger, opts)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func openPostgresBackend(ctx context.Context, cfg *config.Config, logger *logging.Logger, opts Options) (*Backend, error) {
	logger.Info("Connecting to PostgreSQL", logging.Fields{
		"host": cfg.Database.Host,
		"port": cfg.Database.Port,
	})
	db, err := database.NewPostgresDB(cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	logger.Info("Connected to PostgreSQL")

	if opts.Migrate {
		if err := migrateUp(cfg, logger); err != nil {
			db.Close()
			return nil, err
		}
	}

	return &Backend{
		Name:    "postgres",
		Repo:    services.NewPostgresProfileStore(services.NewPoolAdapter(db.Pool)),
		Checker: db,
		close:   db.Close,
	}, nil
}

func migrateUp(cfg *config.Config, logger *logging.Logger) error {
	logger.Info("Running database migrations...", logging.Fields{"dir": cfg.Store.MigrationsDir})
	migrator, err := database.NewMigrator(cfg.Database.DSN(), cfg.Store.MigrationsDir)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	defer func() { _ = migrator.Close() }()

	if err := migrator.Up(); err != nil {
		return err
	}
	logger.Info("Migrations completed")
	return nil
}

func openMongoBackend(ctx context.Context, cfg *config.Config, logger *logging.Logger, opts Options) (*Backend, error) {
	logger.Info("Connecting to MongoDB", logging.Fields{
		"database":   cfg.Mongo.Database,
		"collection": cfg.Mongo.Collection,
	})
	db, err := database.NewMongoDB(cfg.Mongo.URI, cfg.Mongo.Database, cfg.Mongo.Collection, cfg.Mongo.Timeout)
	if err != nil {
		return nil, fmt.Errorf("connecting to mongodb: %w", err)
	}
	if err := db.EnsureIndexes(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Info("Connected to MongoDB")

	return &Backend{
		Name:    "mongodb",
		Repo:    services.NewMongoProfileStore(db.Collection()),
		Checker: db,
		close:   func() { _ = db.Close() },
	}, nil
}
