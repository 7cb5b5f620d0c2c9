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

// The message variant: status page plus a form whose submissions are written
// to the data volume, proving writes survive pod restarts.
func main() {
	cfg, err := config.LoadConfig(config.Message)
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Init(cfg.Log.Level)
	logger.Infof("config loaded: app=%s data_dir=%s log_level=%s redis=%v metrics=%v",
		cfg.App.Name, cfg.Data.Dir, logger.LevelString(), cfg.Redis.Addr() != "", cfg.Metrics.Addr != "")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(ctx, cfg)
	srv.Initialize(ctx)
	if err := srv.Run(ctx); err != nil {
		logger.Fatalf("server failed: %v", err)
	}
}
