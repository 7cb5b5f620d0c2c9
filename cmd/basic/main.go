package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/paastest/clustertest/internal/config"
	"github.com/paastest/clustertest/internal/server"
	"github.com/paastest/clustertest/pkg/logger"
)

func main() {
	cfg, err := config.LoadConfig(config.Basic)
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Init(cfg.Log.Level)
	logger.Infof("basic test app: data_dir=%s", cfg.Data.Dir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(ctx, cfg)
	srv.Initialize(ctx)
	if err := srv.Run(ctx); err != nil {
		logger.Fatalf("server failed: %v", err)
	}
}
