// p2pescrow - escrow-backed peer-to-peer trading service
package main

import (
	"context"
	"os"

	"github.com/mbd888/p2pescrow/internal/config"
	"github.com/mbd888/p2pescrow/internal/logging"
	"github.com/mbd888/p2pescrow/internal/server"
)

// Build info - set by ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	boot := logging.New("info", "text")

	cfg, err := config.Load()
	if err != nil {
		boot.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat).With("version", Version)
	logger.Info("starting p2pescrow",
		"commit", Commit,
		"build_time", BuildTime,
		"env", cfg.Env,
		"escrow_account", cfg.EscrowAccount,
		"payment_window", cfg.PaymentWindow.String(),
		"postgres", cfg.DatabaseURL != "",
	)

	srv, err := server.New(cfg, server.WithLogger(logger))
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	if err := srv.Run(context.Background()); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
