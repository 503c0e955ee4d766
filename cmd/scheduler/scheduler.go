// Package scheduler implements the scheduler daemon command.
package scheduler

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

	"github.com/jonesrussell/north-cloud/pricetracker/cmd/common"
	"github.com/jonesrussell/north-cloud/pricetracker/internal/logger"
	"github.com/jonesrussell/north-cloud/pricetracker/internal/metrics"
)

const (
	signalChannelBufferSize = 1
	readHeaderTimeout       = 5 * time.Second
)

// Command returns the scheduler command.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "scheduler",
		Short: "Run the price tracking scheduler",
		Long: `Run tracking jobs for every scheduled product until interrupted.
Prometheus metrics are served on the configured metrics address.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := common.NewCommandDeps()
			if err != nil {
				return err
			}

			rt, err := common.NewRuntime(cmd.Context(), deps, common.RuntimeOptions{Coordination: true})
			if err != nil {
				return err
			}
			defer rt.Close()

			return run(cmd.Context(), rt)
		},
	}
}

func run(ctx context.Context, rt *common.Runtime) error {
	log := rt.Deps.Logger
	cfg := rt.Deps.Config

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(rt.Registry))
	server := &http.Server{
		Addr:              cfg.Metrics.Address,
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Serving metrics", logger.String("address", cfg.Metrics.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	if err := rt.Scheduler.Start(ctx); err != nil {
		_ = server.Close()
		return fmt.Errorf("start scheduler: %w", err)
	}

	sigChan := make(chan os.Signal, signalChannelBufferSize)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var runErr error
	select {
	case serverErr := <-errChan:
		log.Error("Metrics server error", logger.Error(serverErr))
		runErr = fmt.Errorf("metrics server: %w", serverErr)
	case sig := <-sigChan:
		log.Info("Shutdown signal received", logger.String("signal", sig.String()))
	case <-ctx.Done():
	}

	return shutdown(log, server, rt, cfg.Scheduler.ShutdownTimeout, runErr)
}

// shutdown stops the scheduler first so in-flight runs can finish, then the
// metrics server.
func shutdown(log logger.Logger, server *http.Server, rt *common.Runtime, timeout time.Duration, runErr error) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := rt.Scheduler.Stop(shutdownCtx); err != nil {
		log.Error("Failed to stop scheduler cleanly", logger.Error(err))
		runErr = errors.Join(runErr, err)
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Failed to stop metrics server", logger.Error(err))
		runErr = errors.Join(runErr, err)
	}

	log.Info("Scheduler stopped")
	return runErr
}
