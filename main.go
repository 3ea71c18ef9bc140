package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ms-auction/internal/auction"
	"ms-auction/internal/auction/auction_api"
	auction_db "ms-auction/internal/auction/db"
	auction_redis "ms-auction/internal/auction/redis"
	"ms-auction/internal/auth"
	"ms-auction/internal/broadcast"
	"ms-auction/internal/config"
	"ms-auction/internal/database/migrations"
	"ms-auction/internal/kafka"
	"ms-auction/internal/logger"
	"ms-auction/internal/notification"
	notification_db "ms-auction/internal/notification/db"
	"ms-auction/internal/notification/notification_api"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

func connectPostgres(cfg config.DatabaseConfig, log *logger.Logger) *bun.DB {
	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Connecting to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", cfg.DSN)
		if err == nil {
			if err = sqldb.Ping(); err == nil {
				break
			}
			sqldb.Close()
		}
		log.Error("DATABASE", fmt.Sprintf("PostgreSQL not reachable: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.MaxLifetime)
	log.Info("DATABASE", "PostgreSQL connection successful")
	return bun.NewDB(sqldb, pgdialect.New())
}

func connectRedis(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatal("REDIS", fmt.Sprintf("Redis connection error: %v", err))
	}
	log.Info("REDIS", fmt.Sprintf("Redis connection successful to %s (DB: %d)", cfg.Addr, cfg.DB))
	return client
}

func newVerifier(ctx context.Context, cfg config.AuthConfig) (auth.Verifier, error) {
	if cfg.Mode == "hs256" {
		return auth.NewHS256Verifier(cfg.HMACSecret), nil
	}
	return auth.NewOIDCVerifier(ctx, cfg.Issuer, cfg.ClientID)
}

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println(".env file not found, using environment variables")
	}
	cfg := config.Load()

	log := logger.NewLogger("auction-api", cfg.Log.Dir)
	defer log.Close()
	if err := cfg.Validate(); err != nil {
		log.Fatal("CONFIG", err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Database.AutoMigrate {
		runner := migrations.NewRunner(cfg.Database.DSN, migrations.Options{MigrationsDir: cfg.Database.MigrationsDir}, log)
		if err := runner.Up(); err != nil {
			log.Fatal("MIGRATION", fmt.Sprintf("Migrations failed: %v", err))
		}
		runner.Close()
	}

	bunDB := connectPostgres(cfg.Database, log)
	defer bunDB.Close()
	redisClient := connectRedis(ctx, cfg.Redis, log)
	defer redisClient.Close()

	store := &auction_db.DB{Bun: bunDB}
	rdb := auction_redis.NewRedis(redisClient, cfg.Redis, log)
	if err := rdb.EnableExpiryEvents(ctx); err != nil {
		log.Warn("REDIS", fmt.Sprintf("Expiry notifications unavailable, relying on the sweeper: %v", err))
	}

	deps := auction.Deps{
		DB:          store,
		Topics:      cfg.Kafka.Topics,
		Timers:      rdb,
		Idempotency: rdb,
		Cache:       rdb,
		Logger:      log,
	}

	if cfg.Kafka.Enabled {
		topics := []string{cfg.Kafka.Topics.BidAccepted, cfg.Kafka.Topics.StatusChanged}
		if err := kafka.EnsureTopicsExist(ctx, cfg.Kafka.Brokers, topics, 3, log); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}
		producer := kafka.NewProducer(cfg.Kafka.Brokers, log)
		defer producer.Close()
		deps.Events = producer
		log.Info("KAFKA", "Kafka producer initialized")
	}

	if cfg.Broadcaster.LiveTransport == "websocket" {
		client := broadcast.NewClient(cfg.Broadcaster.URL, cfg.Broadcaster.InternalToken,
			cfg.Broadcaster.ReconnectDelay, cfg.Broadcaster.SendBuffer, log)
		go client.Run(ctx)
		deps.Live = client
	}

	svc := auction.NewService(deps)
	defer svc.Close()
	go auction.NewSweeper(svc, cfg.Lifecycle.SweepInterval, log).Run(ctx)
	go func() {
		err := rdb.SubscribeExpiries(ctx, svc.Reevaluate)
		if err != nil {
			log.Error("REDIS", fmt.Sprintf("Expiry subscription ended: %v", err))
		}
	}()

	verifier, err := newVerifier(ctx, cfg.Auth)
	if err != nil {
		log.Fatal("AUTH", fmt.Sprintf("Failed to initialize token verifier: %v", err))
	}
	authn := auth.Middleware(verifier, log)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(log.RequestLogger)

	r.Get("/healthz", auction_api.Health(map[string]auction_api.Check{
		"postgres": store.Ping,
		"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	}))
	auction_api.NewHandler(svc, log, cfg.Bid.Timeout).Register(r, authn)
	notification_api.NewHandler(notification.NewService(&notification_db.DB{Bun: bunDB}, log), log).Register(r, authn)

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("Auction API running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	<-ctx.Done()
	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server shutdown failed: %v", err))
		os.Exit(1)
	}
	log.Info("HTTP", "Auction API shutdown complete")
}
