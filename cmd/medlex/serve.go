package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gcbaptista/medlex-spotter/api"
	"github.com/gcbaptista/medlex-spotter/config"
	"github.com/gcbaptista/medlex-spotter/internal/engine"
	"github.com/gcbaptista/medlex-spotter/internal/jobs"
	"github.com/gcbaptista/medlex-spotter/internal/metrics"
)

const shutdownTimeout = 15 * time.Second

type serveOptions struct {
	targets    string
	port       string
	workers    int
	jobWorkers int
}

func newServeCmd() *cobra.Command {
	opts := serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP scanning API",
		Long: `Serve loads the targets once and exposes the engine over HTTP:
single-note scans, asynchronous batches tracked as jobs, and Prometheus
metrics on /metrics.

Examples:
  medlex serve --targets targets.yaml
  medlex serve --targets targets.yaml --port 9000 --log-format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts, logger)
		},
	}

	cmd.Flags().StringVar(&opts.targets, "targets", "", "targets YAML file (required)")
	cmd.Flags().StringVar(&opts.port, "port", "8080", "port to listen on")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "notes scanned in parallel inside one batch (0 = number of CPUs)")
	cmd.Flags().IntVar(&opts.jobWorkers, "job-workers", 2, "batches run concurrently")
	_ = cmd.MarkFlagRequired("targets")

	return cmd
}

// newServer builds the handler stack and the job manager behind it. The
// caller starts the manager and stops it after the server has shut down.
func newServer(opts serveOptions, logger *zap.Logger) (*http.Server, *jobs.Manager, error) {
	cfg, err := config.Load(opts.targets)
	if err != nil {
		return nil, nil, err
	}
	eng, err := engine.New(cfg)
	if err != nil {
		return nil, nil, err
	}

	m := metrics.New()
	jm := jobs.NewManager(opts.jobWorkers, jobs.WithLogger(logger), jobs.WithMetrics(m))
	svc := engine.NewService(eng, jm, opts.workers, m, logger)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	api.SetupRoutes(router, svc, m, logger)

	srv := &http.Server{
		Addr:              ":" + opts.port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv, jm, nil
}

func runServe(ctx context.Context, opts serveOptions, logger *zap.Logger) error {
	srv, jm, err := newServer(opts, logger)
	if err != nil {
		return err
	}

	jm.Start()
	defer jm.Stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}
