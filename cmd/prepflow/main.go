package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"prepflow/internal/cli"
	"prepflow/internal/config"
	"prepflow/internal/logging"
	"prepflow/internal/pipeline"
	"prepflow/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.Setup(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up logging: %v\n", err)
		os.Exit(1)
	}

	store, err := storage.New(cfg.Paths.DatabasePath)
	if err != nil {
		logger.Warn("run history disabled", "error", err)
		store = nil
	} else {
		defer store.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Scripts target a single host instance, so one worker is enough.
	pipe := pipeline.New(ctx, 1, logger, store, cfg)
	defer pipe.Stop()

	rootCmd := cli.NewRootCmd(cfg, logger, store, pipe)
	rootCmd.SetContext(ctx)
	if err := rootCmd.Execute(); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}
