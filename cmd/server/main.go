// Mule-Hunter Engine - real-time transaction fraud assessment
package main

import (
	"context"
	"os"

	"github.com/muskan-khushi/Mule-Hunter-Engine/internal/config"
	"github.com/muskan-khushi/Mule-Hunter-Engine/internal/logging"
	"github.com/muskan-khushi/Mule-Hunter-Engine/internal/server"
)

// Build info - set by ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	logger := logging.New("info", "text")

	logger.Info("starting mule-hunter engine",
		"version", Version,
		"commit", Commit,
		"build_time", BuildTime,
	)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"env", cfg.Env,
		"bot_threshold", cfg.BotThreshold,
		"ledger_batch_size", cfg.LedgerBatchSize,
	)

	srv, err := server.New(cfg, server.WithLogger(logger))
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
