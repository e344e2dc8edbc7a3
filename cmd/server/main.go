package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openctemio/authz/internal/app"
	"github.com/openctemio/authz/internal/config"
	"github.com/openctemio/authz/internal/infra/http"
	"github.com/openctemio/authz/internal/infra/http/middleware"
	"github.com/openctemio/authz/internal/infra/http/routes"
	"github.com/openctemio/authz/internal/infra/postgres"
	"github.com/openctemio/authz/internal/infra/redis"
	"github.com/openctemio/authz/pkg/jwt"
	"github.com/openctemio/authz/pkg/logger"
	"github.com/openctemio/authz/pkg/validator"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ==========================================================================
	// Configuration & Logger
	// ==========================================================================
	cfg, err := config.Load()
	if err != nil {
		log := logger.NewDefault()
		log.Error("failed to load configuration", "error", err)
		return 1
	}

	log := initLogger(cfg)
	log.Info("starting application", "app", cfg.App.Name, "env", cfg.App.Env)

	// ==========================================================================
	// Infrastructure
	// ==========================================================================
	db, err := postgres.New(&cfg.Database)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		return 1
	}
	defer closeWithLog(db, "database", log)
	log.Info("database connected")

	// Redis backs the decision cache and the job queue; without either it
	// is not needed.
	var redisClient *redis.Client
	if cfg.Cache.Enabled || cfg.Jobs.Enabled {
		redisClient, err = redis.New(&cfg.Redis, log)
		if err != nil {
			log.Error("failed to connect to redis", "error", err)
			return 1
		}
		defer closeWithLog(redisClient, "redis", log)
		stopPoolStats := redis.StartPoolStatsCollector(ctx, redisClient, 15*time.Second)
		defer stopPoolStats()
		log.Info("redis connected")
	}

	// ==========================================================================
	// Job Queue
	// ==========================================================================
	var notifier app.Notifier = app.NopNotifier{}
	if jobClient := NewJobClient(cfg, log); jobClient != nil {
		defer closeWithLog(jobClient, "job client", log)
		notifier = jobClient
	}

	// ==========================================================================
	// Repositories & Services
	// ==========================================================================
	repos := NewRepositories(db)

	services, err := NewServices(&ServiceDeps{
		Config:      cfg,
		Log:         log,
		Repos:       repos,
		RedisClient: redisClient,
		Notifier:    notifier,
	})
	if err != nil {
		log.Error("failed to initialize services", "error", err)
		return 1
	}
	log.Info("services initialized")

	// ==========================================================================
	// HTTP Server
	// ==========================================================================
	checkLimit, stopCheckLimit := middleware.RateLimitWithStop(&cfg.RateLimit, log)
	server := http.NewServer(cfg, log, http.WithCleanup(stopCheckLimit))

	handlers := NewHandlers(&HandlerDeps{
		Log:         log,
		Validator:   validator.New(),
		DB:          db,
		RedisClient: redisClient,
		Services:    services,
	})
	routes.Register(server.Router(), handlers, routes.Dependencies{
		Verifier: jwt.NewVerifier(jwt.VerifierConfig{
			Secret:   cfg.Auth.JWTSecret,
			Issuer:   cfg.Auth.Issuer,
			Audience: cfg.Auth.Audience,
		}),
		Users:          services.User,
		Authorizer:     services.Authorization,
		CheckRateLimit: checkLimit,
	}, log)

	// ==========================================================================
	// Workers
	// ==========================================================================
	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()
	workerDone := make(chan struct{})
	if worker := NewJobWorker(cfg, log); worker != nil {
		go func() {
			defer close(workerDone)
			if err := worker.Run(workerCtx); err != nil {
				log.Error("job worker stopped", "error", err)
			}
		}()
	} else {
		close(workerDone)
	}

	// ==========================================================================
	// Start Server
	// ==========================================================================
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()
	log.Info("application started", "http_addr", cfg.Server.Addr())

	// ==========================================================================
	// Graceful Shutdown
	// ==========================================================================
	exitCode := 0
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			log.Error("server error", "error", err)
			exitCode = 1
		}
	}

	log.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	cancelWorker()
	<-workerDone

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
		return 1
	}

	log.Info("application stopped")
	return exitCode
}

func initLogger(cfg *config.Config) *logger.Logger {
	var log *logger.Logger
	switch {
	case cfg.IsProduction():
		log = logger.NewProduction(cfg.Log.Level)
	case cfg.App.Debug:
		log = logger.NewDevelopment()
	default:
		log = logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: os.Stdout})
	}
	log.SetDefault()
	return log
}

type closer interface {
	Close() error
}

func closeWithLog(c closer, name string, log *logger.Logger) {
	if err := c.Close(); err != nil {
		log.Error("failed to close "+name, "error", err)
	}
}
