// bapbridge - synchronous HTTP bridge over the asynchronous ONIX
// energy-trading protocol.
package main

import (
	"context"
	"os"

	"github.com/onixgrid/bapbridge/internal/config"
	"github.com/onixgrid/bapbridge/internal/logging"
	"github.com/onixgrid/bapbridge/internal/server"
)

// Build info - set by ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	logger := logging.New("info", "text")

	logger.Info("starting bapbridge",
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
		"upstream", cfg.OnixBapURL,
		"subscriber_id", cfg.SubscriberID,
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
