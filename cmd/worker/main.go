package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/akonev/newsletter-delivery/internal/config"
	"github.com/akonev/newsletter-delivery/internal/mailer"
	"github.com/akonev/newsletter-delivery/internal/store"
	"github.com/akonev/newsletter-delivery/internal/worker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.LoadWorker()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgStore, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pgStore.Close()
	logger.Info("connected to PostgreSQL")

	redisStore, err := store.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisStore.Close()
	logger.Info("connected to Redis")

	mailClient := mailer.NewClient(cfg.EmailBaseURL, cfg.EmailSender, cfg.EmailAuthToken, cfg.EmailTimeout)
	queue := worker.NewPostgresQueue(pgStore)
	metrics := redisStore.Metrics()

	// Each loop claims tasks independently; the queue's lock-skipping
	// read keeps concurrent loops off the same task.
	var wg sync.WaitGroup
	for i := 0; i < cfg.NumWorkers; i++ {
		w := worker.New(queue, pgStore, mailClient, metrics, logger.With("worker", i), worker.DefaultConfig())
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run(ctx)
		}()
	}
	logger.Info("delivery workers started", "num_workers", cfg.NumWorkers)

	<-ctx.Done()
	logger.Info("shutting down workers...")
	wg.Wait()
	logger.Info("workers stopped")
}
