package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/aquabled/internal/appconfig"
	"github.com/srg/aquabled/internal/devicefactory"
	"github.com/srg/aquabled/internal/executor"
	"github.com/srg/aquabled/internal/httpapi"
	"github.com/srg/aquabled/internal/orchestrator"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:     "aquabled",
	Short:   "Aquarium BLE peripheral daemon",
	Version: version,
	Long: `aquabled is a long-running daemon that discovers, connects to, and
drives aquarium BLE peripherals (dosing pumps and lighting units),
exposing their live status and command history over HTTP.`,
	RunE: runDaemon,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.SilenceErrors = true
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("config", "", "Configuration directory (overrides AQUA_BLE_CONFIG_DIR)")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		os.Setenv("AQUA_BLE_LOG_LEVEL", v)
	}
	cfg, err := appconfig.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if v, _ := cmd.Flags().GetString("config"); v != "" {
		cfg.ConfigDir = v
	}

	logger := cfg.NewLogger()

	orch, err := orchestrator.New(cfg, logger, devicefactory.NewDevice, devicefactory.DeviceFactory)
	if err != nil {
		return fmt.Errorf("build orchestrator: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := orch.Start(ctx); err != nil {
		return fmt.Errorf("start orchestrator: %w", err)
	}

	exec := executor.New(orch, logger)
	server := httpapi.New(orch, exec, logger)

	addr := fmt.Sprintf("%s:%d", cfg.ServiceHost, cfg.ServicePort)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      server,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Infof("listening on %s", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serveErr:
		logger.WithError(err).Error("http server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("http server shutdown did not complete cleanly")
	}
	if err := orch.Stop(); err != nil {
		logger.WithError(err).Warn("orchestrator shutdown did not complete cleanly")
	}
	return nil
}
