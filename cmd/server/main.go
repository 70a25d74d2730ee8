package main

import (
	"context"
	"errors"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/tenx-cards/internal/app"
	"github.com/suPer8Hu/tenx-cards/internal/config"
	"github.com/suPer8Hu/tenx-cards/internal/httpapi"
	"github.com/suPer8Hu/tenx-cards/internal/httpapi/handlers"
	"github.com/suPer8Hu/tenx-cards/internal/logger"
	"github.com/suPer8Hu/tenx-cards/internal/store/rabbitmq"
	"github.com/suPer8Hu/tenx-cards/internal/worker"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogMode, cfg.LogFile)
	if err != nil {
		stdlog.Fatalf("logger: %v", err)
	}
	defer log.Sync()

	if cfg.LogMode == "production" || cfg.LogMode == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("init app", "error", err)
	}
	defer a.Close()

	g, gctx := errgroup.WithContext(ctx)

	switch cfg.DispatchMode {
	case config.DispatchRabbitMQ:
		pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			log.Fatal("rabbit publisher", "error", err)
		}
		defer pub.Close()
		a.Generations.SetDispatcher(pub)
		log.Info("dispatching generations to rabbitmq", "queue", cfg.RabbitQueue)
	default:
		pool := worker.NewPool(cfg.WorkerConcurrency, cfg.WorkerQueueSize, log)
		a.Generations.SetDispatcher(pool)
		g.Go(func() error {
			return pool.Run(gctx, a.Generations.Run)
		})
	}

	h := handlers.NewHandler(a.DB, cfg, a.Generations, a.Decks, log)
	router := httpapi.NewRouter(httpapi.RouterDeps{Handler: h, Metrics: a.Metrics, Gatherer: a.Registry})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		log.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server stopped with error", "error", err)
		return
	}
	log.Info("server stopped")
}
