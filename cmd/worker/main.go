package main

import (
	"context"
	"os/signal"
	"syscall"

	"payrollengine/internal/app/worker"
	"payrollengine/internal/platform/config"
	"payrollengine/internal/platform/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		logger.Fatalf("config load failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid config: %v", err)
	}

	app, err := worker.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("worker startup failed: %v", err)
	}
	defer app.Close()

	if err := app.Run(ctx); err != nil {
		logger.Errorf("worker stopped: %v", err)
	}
}
