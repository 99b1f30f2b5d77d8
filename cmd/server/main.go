// Package main runs the MineDeck ledger server: the persistent store behind
// the token-mining reward game.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/minedeck/minedeck-server/internal/app"
	"github.com/minedeck/minedeck-server/internal/app/storage/file"
	"github.com/minedeck/minedeck-server/internal/config"
	"github.com/minedeck/minedeck-server/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to YAML configuration file")
	envFile := flag.String("env-file", ".env", "Path to optional .env file")
	dataFile := flag.String("data-file", "", "Snapshot file path (overrides config)")
	flag.Parse()

	// .env is optional; absence is not an error.
	_ = godotenv.Load(*envFile)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *dataFile != "" {
		cfg.Storage.Path = *dataFile
	}

	appLog := logger.New(logger.LoggingConfig{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Output:    cfg.Logging.Output,
		Component: "server",
	})

	store, err := file.New(cfg.Storage.Path, appLog.WithField("component", "storage"))
	if err != nil {
		log.Fatalf("Failed to open snapshot store: %v", err)
	}

	application, err := app.New(cfg, store, appLog)
	if err != nil {
		log.Fatalf("Failed to build application: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		appLog.WithError(err).Error("server failed")
		os.Exit(1)
	}

	if err := application.Shutdown(context.Background()); err != nil {
		appLog.WithError(err).Error("shutdown failed")
		os.Exit(1)
	}
}
