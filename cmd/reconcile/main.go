package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/darsh8000an/study-buddy-matcher/internal/config"
	"github.com/darsh8000an/study-buddy-matcher/internal/database"
	"github.com/darsh8000an/study-buddy-matcher/internal/logging"
	"github.com/darsh8000an/study-buddy-matcher/internal/services"
	"github.com/darsh8000an/study-buddy-matcher/internal/store"
)

func main() {
	interval := flag.Duration("interval", 0, "repeat every interval until interrupted (0 runs once)")
	flag.Parse()

	if err := run(*interval); err != nil {
		logging.Error("Reconcile error", logging.Fields{"error": err.Error()})
		os.Exit(1)
	}
}

func run(interval time.Duration) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	level, err := logging.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		return fmt.Errorf("parsing LOG_LEVEL: %w", err)
	}
	logger := logging.New().SetLevel(level).SetService("study-buddy-reconcile")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := store.Open(ctx, cfg, logger, store.Options{})
	if err != nil {
		return err
	}
	defer backend.Close()

	redisDB, err := database.NewRedisDB(cfg.Redis.Addr(), cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() { _ = redisDB.Close() }()

	reconciler := services.NewReconciler(backend.Repo, services.NewRedisDriftLedger(redisDB.Client), logger)
	return loop(ctx, interval, func(ctx context.Context) error {
		report, err := reconciler.Run(ctx)
		logger.Info("Reconcile pass finished", logging.Fields{
			"checked":    report.Checked,
			"repaired":   report.Repaired,
			"clean":      report.Clean,
			"failed":     report.Failed,
			"superseded": report.Superseded,
		})
		return err
	})
}

// loop calls pass once, then again every interval until ctx is done. A
// failing pass ends a one-shot run but only logs when repeating.
func loop(ctx context.Context, interval time.Duration, pass func(context.Context) error) error {
	if interval <= 0 {
		return pass(ctx)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := pass(ctx); err != nil && ctx.Err() == nil {
			logging.Warn("Reconcile pass failed", logging.Fields{"error": err.Error()})
		}
		if ctx.Err() != nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
