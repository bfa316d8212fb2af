// Knowledged is a multi-tenant knowledge service: resources are uploaded
// into collections, ingested through an async pipeline (scan, graph,
// extract, chunk, embed) and queried through an async RAG pipeline.
//
// The binary runs in two roles sharing one configuration:
//
//	knowledged serve    HTTP facade accepting uploads and queries
//	knowledged worker   pipeline worker consuming dispatched stages
//
// Configuration comes from a YAML file (--config) overridden by
// environment variables; see internal/config.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/knowledged/internal/config"
	"github.com/fyrsmithlabs/knowledged/internal/dispatch"
	"github.com/fyrsmithlabs/knowledged/internal/logging"
	"github.com/fyrsmithlabs/knowledged/internal/telemetry"
	"github.com/fyrsmithlabs/knowledged/pkg/server"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "knowledged",
	Short:         "Multi-tenant knowledge service",
	SilenceUsage:  true,
	SilenceErrors: false,
	Version:       version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(versionCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithSignals(runServe)
	},
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the pipeline worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithSignals(runWorker)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("knowledged\nVersion:    %s\nCommit:     %s\nBuild Date: %s\n",
			version, gitCommit, buildDate)
	},
}

// runWithSignals runs fn under a context cancelled by SIGINT/SIGTERM.
func runWithSignals(fn func(ctx context.Context) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return fn(ctx)
}

// bootstrap loads config, logger, telemetry and the wired application.
func bootstrap(ctx context.Context) (*app, *telemetry.Telemetry, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}

	logger, err := logging.New(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	if err != nil {
		return nil, nil, nil, err
	}

	tel, err := telemetry.New(telemetry.Config{
		Enabled:     cfg.Observability.EnableTelemetry,
		ServiceName: cfg.Observability.ServiceName,
	})
	if err != nil {
		return nil, nil, nil, err
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	return a, tel, logger, nil
}

func runServe(ctx context.Context) error {
	a, tel, logger, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer func() {
		a.close(context.Background())
		_ = tel.Shutdown(context.Background())
		_ = logging.Sync(logger)
	}()

	srv, err := server.New(a.svc, logger, server.Config{
		Port:           a.cfg.Server.Port,
		DiagramsDir:    a.cfg.Server.DiagramsDir,
		MetricsHandler: tel.Handler(),
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func runWorker(ctx context.Context) error {
	a, tel, logger, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer func() {
		a.close(context.Background())
		_ = tel.Shutdown(context.Background())
		_ = logging.Sync(logger)
	}()

	worker, err := dispatch.NewWorker(a.dispatcher, a.svc, logger)
	if err != nil {
		return err
	}
	logger.Info("worker started")
	return worker.Run(ctx)
}
