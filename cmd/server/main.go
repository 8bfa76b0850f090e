package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/darsh8000an/study-buddy-matcher/internal/config"
	"github.com/darsh8000an/study-buddy-matcher/internal/database"
	"github.com/darsh8000an/study-buddy-matcher/internal/handlers"
	"github.com/darsh8000an/study-buddy-matcher/internal/logging"
	"github.com/darsh8000an/study-buddy-matcher/internal/matching"
	"github.com/darsh8000an/study-buddy-matcher/internal/middleware"
	"github.com/darsh8000an/study-buddy-matcher/internal/notify"
	"github.com/darsh8000an/study-buddy-matcher/internal/services"
	"github.com/darsh8000an/study-buddy-matcher/internal/store"
)

const devJWTSecret = "study-buddy-dev-secret"

func main() {
	if err := run(); err != nil {
		logging.Error("Application error", logging.Fields{"error": err.Error()})
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	logger.Info("Starting study buddy server...", logging.Fields{
		"env":   cfg.Server.Environment,
		"store": cfg.Store.Backend,
	})

	backend, err := store.Open(context.Background(), cfg, logger, store.Options{Migrate: true})
	if err != nil {
		return err
	}
	defer backend.Close()

	// Connect to Redis
	logger.Info("Connecting to Redis", logging.Fields{"addr": cfg.Redis.Addr()})
	redisDB, err := database.NewRedisDB(cfg.Redis.Addr(), cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() { _ = redisDB.Close() }()
	logger.Info("Connected to Redis")

	secret := cfg.Auth.JWTSecret
	if secret == "" {
		logger.Warn("JWT_SECRET not set; using development secret")
		secret = devJWTSecret
	}
	authService := services.NewAuthService(secret, cfg.Auth.JWTIssuer, cfg.Auth.TokenTTL)

	// Socket transport
	socketServer := notify.NewSocketServer(authService, logger.WithField("component", "socket"))
	go func() {
		if err := socketServer.Serve(); err != nil {
			logger.Error("Socket server stopped", logging.Fields{"error": err.Error()})
		}
	}()
	defer func() { _ = socketServer.Close() }()
	sink := notify.Multi{socketServer.Sink(), notify.NewLogSink(logger.WithField("component", "notify"))}

	// Initialize services
	driftLedger := services.NewRedisDriftLedger(redisDB.Client)
	matchService := services.NewMatchService(
		backend.Repo,
		matching.Default(),
		sink,
		driftLedger,
		services.MatchConfig{
			SuggestionLimit: cfg.Match.SuggestionLimit,
			CandidatePool:   cfg.Match.CandidatePool,
			MirrorRetries:   cfg.Match.MirrorRetries,
			RetryDelay:      cfg.Match.RetryDelay,
		},
		logger.WithField("component", "match"),
	)
	notifyCtx, stopNotify := context.WithCancel(context.Background())
	defer stopNotify()
	matchService.SetAsyncContext(notifyCtx)
	profileService := services.NewProfileService(backend.Repo)

	checkers := map[string]handlers.HealthChecker{
		backend.Name: backend.Checker,
		"redis":      redisDB,
	}

	handler := newRouter(routes{
		health:        handlers.NewHealthHandler(checkers),
		matches:       handlers.NewMatchHandler(matchService, logger),
		profiles:      handlers.NewProfileHandler(profileService, logger),
		socket:        socketServer,
		auth:          middleware.NewAuthMiddleware(authService),
		requestLimit:  middleware.NewMatchRequestLimiter(redisDB.Client, cfg.Match.RequestsPerHour),
		security:      middleware.NewSecurityHeaders(cfg.Server.Secure),
		requestLogger: middleware.NewRequestLogger(logger),
		corsOrigins:   cfg.Server.CORSOrigins,
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan struct{})
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		logger.Info("Server is shutting down...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		server.SetKeepAlivesEnabled(false)
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("Could not gracefully shutdown the server", logging.Fields{"error": err.Error()})
		}
		stopNotify()
		close(done)
	}()

	logger.Info("Server listening", logging.Fields{"addr": server.Addr})
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	<-done
	logger.Info("Server stopped")
	return nil
}

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("parsing LOG_LEVEL: %w", err)
	}
	if cfg.Server.Debug {
		level = logging.LevelDebug
	}
	logging.SetDefaultLevel(level)
	return logging.New().SetLevel(level).SetService("study-buddy"), nil
}
