package main

import (
	"context"
	"log/slog"
	"os"

	_ "github.com/kirinyoku/cinema-es/docs"
	"github.com/kirinyoku/cinema-es/internal/app"
	"github.com/kirinyoku/cinema-es/internal/config"
)

// @title Cinema API
// @version 1.0
// @description Event-sourced cinema management service.
// @host localhost:8080
// @BasePath /
func main() {
	level := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	cfg, err := config.New()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create application", "error", err)
		os.Exit(1)
	}

	if err := application.Run(context.Background()); err != nil {
		logger.Error("application finished with error", "error", err)
		os.Exit(1)
	}
}
