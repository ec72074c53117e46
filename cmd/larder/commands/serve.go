package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dyluth/larder/internal/printer"
	"github.com/dyluth/larder/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the larder HTTP API.

Endpoints:
  POST   /api/v1/artifacts/:kind              request an artifact
  DELETE /api/v1/artifacts/:kind              invalidate an artifact
  PATCH  /api/v1/tasks/:taskID                apply a task edit
  POST   /api/v1/users/:userID/tasks/completed all tasks completed
  POST   /api/v1/sources/:source/touch        record an upstream change
  GET    /api/v1/usage/:userID                quota usage
  GET    /healthz                             health check
  GET    /metrics                             Prometheus metrics

The process shuts down gracefully on SIGINT or SIGTERM.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Listen port (overrides server.port)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := openApp(ctx, configPath, os.Stderr, "")
	if err != nil {
		return err
	}
	defer a.Close()

	port := a.cfg.Server.Port
	if servePort != 0 {
		port = servePort
	}

	srv, err := server.NewServer(server.Deps{
		Gate:    a.gate,
		Records: a.records,
		Usage:   a.ledger,
		Cache:   a.client,
	}, a.logger, port)
	if err != nil {
		return printer.Error("failed to create server", err.Error(), nil)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	a.logger.Info("larder started",
		zap.String("namespace", a.cfg.Namespace),
		zap.Int("port", port),
		zap.String("generator", a.cfg.Generator.Backend),
	)

	select {
	case sig := <-sigCh:
		a.logger.Info("shutting down", zap.String("signal", sig.String()))
		shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("shutdown failed", zap.Error(err))
		}
		<-errCh
	case runErr := <-errCh:
		if runErr != nil {
			return printer.Error("server stopped", runErr.Error(), nil)
		}
	}

	a.logger.Info("larder stopped")
	return nil
}
