package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/justprosound/miclink"
	"github.com/justprosound/miclink/config"
	"github.com/spf13/cobra"
)

const (
	shutdownTimeout = 10 * time.Second
)

// newLogger creates a JSON logger for CLI use.
func newLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// serveCmd starts the miclink monitor.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the connection monitor",
	Long: `Start the miclink connection monitor.

The monitor will:
  - Load configuration from the specified YAML file
  - Dial every configured receiver's telemetry stream
  - Serve connection state on the configured listen address

The monitor runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  miclink serve -c config.yaml
  miclink serve --config /etc/miclink/config.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = serveCmd.MarkFlagRequired("config")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.Info("config loaded",
		"devices", len(cfg.Devices),
		"grids", len(cfg.Grids),
	)
	logger.Info("starting monitor",
		"listen", cfg.Listen,
		"stale_after", cfg.StaleAfter.Duration().String(),
	)

	// convert config to SDK devices
	devices, err := config.BuildDevices(cfg)
	if err != nil {
		return fmt.Errorf("failed to build devices: %w", err)
	}

	if len(devices) == 0 {
		return fmt.Errorf("no devices configured")
	}

	// create the monitor with options
	opts := []miclink.Option{
		miclink.WithDevices(devices...),
		miclink.WithListenAddr(cfg.Listen),
		miclink.WithStaleAfter(cfg.StaleAfter.Duration()),
		miclink.WithReconnectPolicy(
			cfg.Reconnect.BaseDelay.Duration(),
			cfg.Reconnect.MaxDelay.Duration(),
			cfg.Reconnect.MaxAttempts,
		),
		miclink.WithLogger(logger),
	}
	if cfg.Journal != "" {
		opts = append(opts, miclink.WithJournalPath(cfg.Journal))
	}
	if cfg.Database.Driver != "" {
		opts = append(opts, miclink.WithDatabase(cfg.Database.Driver, cfg.Database.DSN))
	}

	mon, err := miclink.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create monitor: %w", err)
	}

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// start monitor - blocks until context cancelled
	errChan := make(chan error, 1)
	go func() {
		errChan <- mon.Start(ctx)
	}()

	// wait for monitor to finish
	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("monitor error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil

	case <-ctx.Done():
		// signal received, wait for graceful shutdown with timeout
		select {
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("monitor error: %w", err)
			}
			logger.Info("shutdown complete")
			return nil
		case <-time.After(shutdownTimeout):
			logger.Warn("shutdown timed out",
				"timeout", shutdownTimeout.String(),
				"action", "forcing exit",
			)
			return nil
		}
	}
}
