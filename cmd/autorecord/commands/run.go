package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/MEKXH/autorecord/internal/app"
	"github.com/MEKXH/autorecord/internal/bus"
	"github.com/MEKXH/autorecord/internal/gateway"
	"github.com/spf13/cobra"
)

func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the AutoRecord server",
		RunE:  runServer,
	}

	return cmd
}

func runServer(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	host := app.NewHost(ctx, cfg)
	if err := host.Start(ctx); err != nil {
		slog.Error("application start failed", "error", err)
	}

	// The dispatcher outlives the signal so queued events drain on shutdown.
	dispatchCtx, dispatchCancel := context.WithCancel(context.Background())
	defer dispatchCancel()
	dispatcher := bus.NewDispatcher(cfg.Dispatch.Workers, cfg.Dispatch.QueueSize, host.Handle)
	dispatchDone := make(chan error, 1)
	go func() {
		dispatchDone <- dispatcher.Run(dispatchCtx)
	}()

	errCh := make(chan error, 1)
	gatewayServer := gateway.New(cfg.Gateway, dispatcher, host)
	go func() {
		if err := gatewayServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("gateway server failed: %w", err)
		}
	}()

	fmt.Printf("AutoRecord running for %v. Gateway: http://%s\nPress Ctrl+C to stop.\n", cfg.ApplicationNames(), gatewayServer.Addr())

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		slog.Error("server component failed", "error", runErr)
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	slog.Info("shutting down")
	if err := gatewayServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Warn("gateway shutdown failed", "error", err)
	}

	dispatcher.Close()
	select {
	case <-dispatchDone:
	case <-shutdownCtx.Done():
		slog.Warn("event queue did not drain before shutdown timeout")
		dispatchCancel()
		<-dispatchDone
	}

	if err := host.Close(); err != nil {
		slog.Warn("failed to persist recorder state", "error", err)
	}

	return runErr
}
