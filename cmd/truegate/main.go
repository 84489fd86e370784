package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/akilapilapitiya/TrueGate-sub001/internal/config"
	"github.com/akilapilapitiya/TrueGate-sub001/internal/logger"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zl, err := logger.New(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := buildApp(cfg, zl)
	if err != nil {
		zl.Fatal("Failed to initialize server", zap.Error(err))
	}

	if err := app.server.Run(ctx); err != nil {
		zl.Fatal("Server exited with error", zap.Error(err))
	}
}
