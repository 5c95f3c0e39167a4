package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/popules/ticko-sub001/app"
	"github.com/popules/ticko-sub001/app/config"
	"github.com/popules/ticko-sub001/app/logging"
	"github.com/popules/ticko-sub001/app/reconcile"

	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.Queue.ReconcileURL == "" {
		log.Fatal("RECONCILE_QUEUE_URL environment variable is required")
	}
	logger, err := logging.New(cfg.Logs.Level, cfg.Logs.Style)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	st, machine, err := app.NewMachine(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize state machine", zap.Error(err))
	}
	defer st.Close()

	sqsClient, err := reconcile.NewSQSClient(ctx)
	if err != nil {
		logger.Fatal("failed to build SQS client", zap.Error(err))
	}

	worker := reconcile.NewWorker(sqsClient, cfg.Queue.ReconcileURL, machine, logger.Named("reconcile"))
	if err := worker.Run(ctx); err != nil {
		logger.Error("worker stopped", zap.Error(err))
	}
	logger.Info("worker shut down")
}
