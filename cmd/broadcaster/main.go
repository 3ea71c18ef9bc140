package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"ms-auction/internal/broadcast"
	"ms-auction/internal/config"
	"ms-auction/internal/kafka"
	"ms-auction/internal/logger"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println(".env file not found, using environment variables")
	}
	cfg := config.Load()

	log := logger.NewLogger("broadcaster", cfg.Log.Dir)
	defer log.Close()
	if cfg.Broadcaster.InternalToken == "" {
		log.Warn("CONFIG", "BROADCASTER_INTERNAL_TOKEN is empty; internal ingress will refuse every connection")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := broadcast.NewHub(cfg.Broadcaster.SendBuffer, log)
	server := &http.Server{
		Addr:    cfg.Broadcaster.Port,
		Handler: broadcast.NewRouter(broadcast.NewServer(hub, cfg.Broadcaster.InternalToken, log)),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("HTTP", fmt.Sprintf("Broadcaster running on %s", cfg.Broadcaster.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if cfg.Broadcaster.KafkaIngest && cfg.Kafka.Enabled {
		topics := []string{cfg.Kafka.Topics.BidAccepted, cfg.Kafka.Topics.StatusChanged}
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, topics, log)
		defer consumer.Close()
		g.Go(func() error {
			return hub.Ingest(gctx, consumer)
		})
		log.Info("KAFKA", fmt.Sprintf("Ingesting live events from %v", topics))
	}

	if err := g.Wait(); err != nil {
		log.Error("APP", fmt.Sprintf("Broadcaster stopped: %v", err))
		return
	}
	log.Info("APP", "Broadcaster shutdown complete")
}
