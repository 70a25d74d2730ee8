package main

import (
	"context"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"

	"github.com/suPer8Hu/tenx-cards/internal/app"
	"github.com/suPer8Hu/tenx-cards/internal/config"
	"github.com/suPer8Hu/tenx-cards/internal/logger"
	"github.com/suPer8Hu/tenx-cards/internal/store/rabbitmq"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogMode, cfg.LogFile)
	if err != nil {
		stdlog.Fatalf("logger: %v", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("init app", "error", err)
	}
	defer a.Close()

	consumer, err := rabbitmq.NewConsumer(cfg.RabbitURL, cfg.RabbitQueue, cfg.WorkerConcurrency, log)
	if err != nil {
		log.Fatal("rabbit consumer", "error", err)
	}
	defer consumer.Close()

	log.Info("worker started", "queue", cfg.RabbitQueue, "concurrency", cfg.WorkerConcurrency)
	if err := consumer.Run(ctx, a.Generations.Run); err != nil {
		log.Error("worker stopped", "error", err)
		return
	}
	log.Info("worker shutting down")
}
