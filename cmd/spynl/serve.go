package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/SoftwearDevelopment/spynl/pkg/spynl"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start Spynl with the plugins selected by spynl.enable_plugins.

The config file is watched: origin whitelists and the log level are
reloaded when it changes.`,
	RunE: runServe,
}

var shutdownTimeout time.Duration

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 30*time.Second, "time allowed for in-flight requests on shutdown")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, level := newLogger()

	app, err := spynl.New(
		spynl.WithConfigFile(cfgFile),
		spynl.WithLogger(logger),
		spynl.WithLevel(level),
	)
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received, stopping spynl...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := app.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
		return err
	}
	return nil
}
