/**
 * @description
 * This is the main entry point for the subscription-service. It
 * initializes and wires together all the components of the application:
 * configuration, database connection, repository, event producer, rate
 * limiter, exchange client, service, and the HTTP router. Finally, it
 * starts the HTTP server and shuts it down gracefully on SIGINT/SIGTERM.
 */
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"

	"github.com/algoflow/subscription-service/internal/api"
	"github.com/algoflow/subscription-service/internal/app"
	"github.com/algoflow/subscription-service/internal/config"
	"github.com/algoflow/subscription-service/internal/store"
	"github.com/algoflow/subscription-service/pkg/binanceclient"
	"github.com/algoflow/subscription-service/pkg/rabbitmq"
)

func main() {
	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	pgConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Error("unable to parse database URL", "error", err)
		os.Exit(1)
	}
	pgConfig.MaxConns = 100
	pgConfig.MinConns = 20
	pgConfig.MaxConnLifetime = 30 * time.Minute
	pgConfig.MaxConnIdleTime = 5 * time.Minute

	// IMPORTANT: Disable prepared statements to work with PgBouncer transaction pooling
	// Use simple protocol to avoid statement cache errors (SQLSTATE 42P05)
	pgConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	// Commission amounts and rates are NUMERIC columns read into
	// shopspring decimals.
	pgConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	dbpool, err := pgxpool.NewWithConfig(ctx, pgConfig)
	if err != nil {
		logger.Error("unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()
	logger.Info("database connection established")

	if err := store.EnsureSchema(ctx, dbpool); err != nil {
		logger.Error("failed to ensure database schema", "error", err)
		os.Exit(1)
	}

	repository := store.NewPostgresRepository(dbpool)

	var publisher app.EventPublisher = &rabbitmq.EventProducerFallback{}
	if cfg.RabbitMQURL != "" {
		if producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL); err == nil {
			publisher = producer
			defer producer.Close()
		} else {
			logger.Warn("failed to connect to RabbitMQ, using fallback publisher", "error", err)
		}
	}

	var limiter *app.RedisVerificationRateLimiter
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Warn("invalid Redis URL, verification rate limiting disabled", "error", err)
		} else {
			limiter = app.NewRedisVerificationRateLimiter(redis.NewClient(redisOpts), "algoflow:rate_limit")
		}
	}

	exchangeClient := binanceclient.NewClient(cfg.BinanceAPIBaseURL)

	service := app.NewService(repository, publisher, logger)
	handler := api.NewHandler(service, exchangeClient, limiter,
		cfg.VerifyRateLimit, time.Duration(cfg.VerifyRateWindowSeconds)*time.Second)
	router := api.NewRouter(handler, cfg.IdentityJWKSURL)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: router,
	}

	go func() {
		logger.Info("starting server", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-sigCh
	logger.Info("shutdown signal received, gracefully shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}

	logger.Info("server stopped")
}
