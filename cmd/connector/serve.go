package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/goliatone/go-connectors/core"
	"github.com/goliatone/go-connectors/inbound"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 5 * time.Second
)

type serveOptions struct {
	listenAddr string
	migrate    bool
}

func newServeCommand(root *rootOptions) *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the connector HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), root, opts)
		},
	}
	cmd.Flags().StringVar(&opts.listenAddr, "listen", "", "override CONNECTOR_LISTEN_ADDR")
	cmd.Flags().BoolVar(&opts.migrate, "migrate", false, "apply pending migrations before serving")
	return cmd
}

func runServe(ctx context.Context, root *rootOptions, opts *serveOptions) error {
	cfg, err := root.load(ctx, core.Config{ListenAddr: opts.listenAddr})
	if err != nil {
		return err
	}
	logger := newLogger(os.Stderr, root.logLevel, cfg)

	a, err := buildApp(ctx, cfg, logger, opts.migrate)
	if err != nil {
		logger.Error("connector startup failed", "error", err.Error())
		return err
	}
	defer a.Close()

	handler, err := inbound.NewRouter(a.service, a.facade.InboundHandlers(),
		inbound.WithLogger(logger.Named("http")),
		inbound.WithErrorMapper(a.service.MapError),
		inbound.WithMetricsRecorder(a.metrics),
		inbound.WithMetricsHandler(a.metrics.Handler()),
		inbound.WithAllowedOrigins(cfg.AllowedOrigins...),
		inbound.WithHealthCheck(func(ctx context.Context) error {
			return a.client.DB().PingContext(ctx)
		}),
	)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("connector listening",
			"addr", cfg.ListenAddr,
			"environment", cfg.Environment,
			"providers", len(cfg.Providers),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("connector shutting down")
		return server.Shutdown(shutdownCtx)
	})
	return group.Wait()
}
