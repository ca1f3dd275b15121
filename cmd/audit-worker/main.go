package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	amqp "github.com/rabbitmq/amqp091-go"
	mongoadapter "github.com/robertarktes/turf-booking-assistant/internal/adapters/mongo"
	"github.com/robertarktes/turf-booking-assistant/internal/adapters/rabbit"
	"github.com/robertarktes/turf-booking-assistant/internal/config"
	"github.com/robertarktes/turf-booking-assistant/internal/observability"
)

const queueName = "turf.audit"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg, "turf-audit-worker")
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger(cfg.LogLevel)

	db, err := mongoadapter.Connect(context.Background(), cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer db.Client().Disconnect(context.Background())

	audit := mongoadapter.NewAuditLogger(db, logger)
	projection := mongoadapter.NewBookingProjection(db, logger)

	// audit-worker show <booking id> prints what has been recorded and exits.
	if len(os.Args) == 3 && os.Args[1] == "show" {
		if err := showBooking(context.Background(), os.Stdout, projection, audit, os.Args[2]); err != nil {
			logger.WithError(err).Error("show booking")
			os.Exit(1)
		}
		return
	}

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer conn.Close()
	consumer, err := rabbit.NewConsumer(conn, queueName, rabbit.BookingKeys, logger)
	if err != nil {
		log.Fatalf("failed to create consumer: %v", err)
	}
	defer consumer.Close()

	worker := NewAuditWorker(audit, projection, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := consumer.Run(ctx, worker.Handle); err != nil && ctx.Err() == nil {
			logger.WithError(err).Error("consumer stopped")
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	logger.Info("Shutdown audit worker")
}
