package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"score_service/internal/auth"
	"score_service/internal/broadcast"
	"score_service/internal/config"
	"score_service/internal/http_server/cookies"
	"score_service/internal/http_server/router"
	"score_service/internal/leaderboard"
	"score_service/internal/lib/jwt"
	sl "score_service/internal/lib/logger/sl"
	"score_service/internal/metrics"
	"score_service/internal/rabbitmq"
	"score_service/internal/score"
	"score_service/internal/storage/memory"
	"score_service/internal/storage/postgres"
	"score_service/internal/storage/redis"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

// store is the credential store surface shared by the postgres and memory
// backends.
type store interface {
	auth.UserSaver
	auth.UserProvider
	score.ScoreStore
	leaderboard.Provider
	Close()
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath())
	if err != nil {
		return err
	}

	log := setupLogger(cfg.Env)

	log.Info("starting score service", slog.String("env", cfg.Env), slog.String("storage", cfg.Storage.Driver))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go func() {
		select {
		case <-sigs:
			log.Info("Shutdown signal received")
			cancel()
		case <-ctx.Done():
		}
	}()

	storage, err := openStorage(ctx, log, cfg.Storage)
	if err != nil {
		log.Error("failed to open storage", sl.Err(err))
		return err
	}
	defer storage.Close()

	var cache leaderboard.Cache
	if cfg.Redis.Addr != "" {
		redisRepo, err := redis.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.TTL)
		if err != nil {
			log.Error("failed to connect redis", sl.Err(err))
			return err
		}
		defer redisRepo.Close()
		cache = redisRepo
	}

	var events score.EventSender
	if cfg.RabbitMQ.URL != "" {
		msgBroker, err := rabbitmq.New(cfg.RabbitMQ.URL, cfg.RabbitMQ.QueueName)
		if err != nil {
			log.Error("failed to connect rabbitmq", sl.Err(err))
			return err
		}
		defer msgBroker.Close()
		events = msgBroker
	}

	registry, m := metrics.NewRegistry()

	issuer := jwt.NewIssuer(cfg.Tokens.AccessSecret, cfg.Tokens.RefreshSecret, cfg.Tokens.AccessTTL, cfg.Tokens.RefreshTTL)
	authService := auth.New(log, storage, storage, issuer, cfg.Tokens.RotateRefresh, m)

	ranker := leaderboard.New(log, storage, cache, cfg.Leaderboard.Size)
	hub := broadcast.New(log, ranker, m, cfg.Leaderboard.WriteTimeout)
	defer hub.Close()

	scores := score.New(log, storage, ranker, hub, events, m)

	mux := router.New(router.Deps{
		Log:             log,
		Auth:            authService,
		Scores:          scores,
		Hub:             hub,
		Jar:             cookies.New(cfg.Env == envProd, cfg.Tokens.AccessTTL, cfg.Tokens.RefreshTTL),
		AllowedOrigin:   cfg.HTTPServer.AllowedOrigin,
		AllowBearer:     cfg.HTTPServer.AllowBearer,
		RateLimitMax:    cfg.RateLimit.Max,
		RateLimitWindow: cfg.RateLimit.Window,
		Metrics:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{EnableOpenMetrics: true}),
	})

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      mux,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		log.Info("HTTP server is running", slog.String("address", cfg.HTTPServer.Address))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed", sl.Err(err))
			cancel()
		}
	}()

	<-ctx.Done()

	log.Info("Shutting down HTTP server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", sl.Err(err))
	} else {
		log.Info("Server stopped gracefully")
	}

	// Hijacked WebSocket connections outlive Shutdown; closing the hub
	// disconnects them.
	hub.Close()

	log.Info("Score service stopped")

	return nil
}

func openStorage(ctx context.Context, log *slog.Logger, cfg config.Storage) (store, error) {
	const op = "main.openStorage"

	switch cfg.Driver {
	case config.DriverMemory:
		log.Warn("using in-memory storage, data is lost on restart")
		return memory.New(), nil
	case config.DriverPostgres:
		if cfg.Migrate {
			if err := postgres.MigrateUp(cfg.DSN); err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
			log.Info("database migrations applied")
		}

		repo, err := postgres.New(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return repo, nil
	}

	return nil, fmt.Errorf("%s: unknown storage driver %q", op, cfg.Driver)
}
