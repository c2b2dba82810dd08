package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"github.com/angelmondragon/cred30-backend/pkg/config"
	"github.com/angelmondragon/cred30-backend/pkg/db"
	"github.com/angelmondragon/cred30-backend/pkg/logger"
	"github.com/angelmondragon/cred30-backend/pkg/migrate"
	"github.com/angelmondragon/cred30-backend/pkg/outbox"
	"github.com/angelmondragon/cred30-backend/pkg/outbox/registry"
	"github.com/angelmondragon/cred30-backend/pkg/pubsub"
)

func main() {
	requeue := flag.String("requeue", "", "move a dead-lettered event back to the outbox and exit")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "outbox-publisher"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "outbox-publisher"

	logg = logger.New(logger.Options{
		ServiceName: "outbox-publisher",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub client", err)
		}
	}()

	repo := outbox.NewRepository(dbClient.DB())
	dlqRepo := outbox.NewDLQRepository(dbClient.DB())
	if *requeue != "" {
		if err := requeueEvent(context.Background(), logg, dbClient, dlqRepo, *requeue); err != nil {
			logg.Error(context.Background(), "outbox.dlq.requeue_failed", err)
			os.Exit(1)
		}
		return
	}
	if backlog, err := dlqRepo.CountByReason(context.Background()); err != nil {
		logg.Warn(context.Background(), "outbox.dlq.backlog_unavailable")
	} else if len(backlog) > 0 {
		fields := make(map[string]any, len(backlog))
		for reason, total := range backlog {
			fields[string(reason)] = total
		}
		logg.Warn(logg.WithFields(context.Background(), fields), "outbox.dlq.backlog")
	}

	eventRegistry, err := registry.NewEventRegistry(cfg.PubSub)
	if err != nil {
		logg.Error(context.Background(), "failed to build event registry", err)
		os.Exit(1)
	}
	service, err := NewService(ServiceParams{
		Config:        cfg,
		Logger:        logg,
		DB:            dbClient,
		PubSub:        pubsubClient,
		Repository:    repo,
		Registry:      eventRegistry,
		DLQRepository: dlqRepo,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox publisher", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": "outbox-publisher",
	})
	logg.Info(ctx, "starting outbox publisher")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "outbox publisher stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "outbox publisher shutting down gracefully")
}

func requeueEvent(ctx context.Context, logg *logger.Logger, dbClient *db.Client, dlqRepo *outbox.DLQRepository, raw string) error {
	eventID, err := uuid.Parse(raw)
	if err != nil {
		return err
	}
	if err := dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		return dlqRepo.Requeue(ctx, tx, eventID)
	}); err != nil {
		return err
	}
	logg.Info(logg.WithField(ctx, "event_id", eventID.String()), "outbox.dlq.requeued")
	return nil
}
