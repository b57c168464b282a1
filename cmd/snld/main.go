// Package main implements snld, which serves the reference SNL engine over
// HTTP and gRPC.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/arkilian/timeline/internal/app"
	"github.com/arkilian/timeline/internal/config"
	"github.com/arkilian/timeline/internal/logging"
)

var (
	version = "dev"
	commit  = "unknown"
)

// flags holds command line overrides, applied after file and environment.
type flags struct {
	configFile string
	dataDir    string
	backend    string
	httpAddr   string
	grpcAddr   string
	logLevel   string
	tokens     []string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &flags{}
	cmd := &cobra.Command{
		Use:   "snld",
		Short: "Serve the reference SNL engine over HTTP and gRPC",
		Long: `snld executes SNL commands against a memory or sqlite backend.

Endpoints:
  POST /v1/execute   execute one command
  GET  /healthz      liveness
  GET  /metrics      Prometheus metrics

Environment variables use the TIMELINE_ prefix, e.g. TIMELINE_ENGINE_BACKEND,
TIMELINE_HTTP_ADDR, TIMELINE_GRPC_ADDR, TIMELINE_ENGINE_TOKENS.`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(f)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&f.configFile, "config", "", "Path to configuration file (YAML or JSON)")
	fs.StringVar(&f.dataDir, "data-dir", "", "Base directory for data files")
	fs.StringVar(&f.backend, "backend", "", "Engine backend: memory or sqlite")
	fs.StringVar(&f.httpAddr, "http-addr", "", "HTTP listen address")
	fs.StringVar(&f.grpcAddr, "grpc-addr", "", "gRPC listen address")
	fs.StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	fs.StringSliceVar(&f.tokens, "token", nil, "Accepted credential (repeatable); none means open")
	return cmd
}

// loadConfig loads configuration from file, environment, and command line flags.
func loadConfig(f *flags) (*config.Config, error) {
	cfg, err := config.Load(f.configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	// snld always serves the in-process engine
	cfg.Executor.Type = config.ExecutorLocal

	if f.dataDir != "" {
		cfg.DataDir = f.dataDir
	}
	if f.backend != "" {
		cfg.Engine.Backend = f.backend
	}
	if f.httpAddr != "" {
		cfg.Server.HTTPAddr = f.httpAddr
	}
	if f.grpcAddr != "" {
		cfg.Server.GRPCAddr = f.grpcAddr
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	if len(f.tokens) > 0 {
		cfg.Engine.Tokens = f.tokens
	}
	return cfg, nil
}

func serve(ctx context.Context, cfg *config.Config) error {
	level, err := logging.LevelFromString(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger := logging.New(level, os.Stderr)

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Start(ctx); err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}
	logger.Info("snld started",
		"version", version,
		"backend", cfg.Engine.Backend,
		"http", a.HTTPAddr(),
		"grpc", a.GRPCAddr(),
		"auth", len(cfg.Engine.Tokens) > 0)

	return a.Wait(ctx)
}
