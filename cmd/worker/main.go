package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/memshield/memshield/internal/audit"
	"github.com/memshield/memshield/internal/config"
	"github.com/memshield/memshield/internal/guard"
	"github.com/memshield/memshield/internal/queue"
	"github.com/memshield/memshield/internal/store"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	st, err := store.New(store.Config{
		DSN:          cfg.Database.DSN(),
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer st.Close()

	q, err := queue.New(queue.Config{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	defer q.Close()

	scanner := guard.NewScanner(
		guard.WithAuditSink(audit.Fanout{audit.NewLog(cfg.Guard.AuditLogCap), st.EventSink()}),
		guard.WithLogger(logger),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	workers := make([]*queue.Worker, 0, cfg.Guard.Workers)
	for i := 0; i < cfg.Guard.Workers; i++ {
		w := queue.NewWorker(queue.WorkerConfig{
			Queue:   q,
			Store:   st,
			Scanner: scanner,
			Logger:  logger,
		})
		if err := w.Start(ctx); err != nil {
			log.Fatalf("Failed to start worker: %v", err)
		}
		workers = append(workers, w)
	}

	<-sigCh
	log.Println("Shutting down...")
	cancel()
	for _, w := range workers {
		w.Stop()
	}
}
