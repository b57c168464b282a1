// Package main implements the timeline command line client.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/arkilian/timeline/internal/app"
	"github.com/arkilian/timeline/internal/config"
	"github.com/arkilian/timeline/internal/logging"
)

var (
	version = "dev"
	commit  = "unknown"
)

// globals holds the persistent flags shared by every subcommand.
type globals struct {
	configFile string
	user       string
	logLevel   string
	dataDir    string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:           "timeline",
		Short:         "Record and query per-user activity timelines",
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.configFile, "config", "", "Path to configuration file (YAML or JSON)")
	root.PersistentFlags().StringVarP(&g.user, "user", "u", os.Getenv("TIMELINE_USER"), "Email of the timeline owner")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&g.dataDir, "data-dir", "", "Base directory for local data")

	root.AddCommand(
		newAddCmd(g),
		newGetCmd(g),
		newUpdateCmd(g),
		newListCmd(g),
		newSearchCmd(g),
		newRemoveCmd(g),
		newTagCmd(g, true),
		newTagCmd(g, false),
		newPurgeCmd(g),
		newStatsCmd(g),
		newArchivesCmd(g),
	)
	return root
}

// open loads configuration and builds the application for one command.
func (g *globals) open(cmd *cobra.Command) (*app.App, error) {
	cfg, err := config.Load(g.configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if g.dataDir != "" {
		cfg.DataDir = g.dataDir
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	level, err := logging.LevelFromString(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	return app.New(cmd.Context(), cfg, logging.New(level, cmd.ErrOrStderr()))
}

// requireUser returns the --user flag or an error naming it.
func (g *globals) requireUser() (string, error) {
	if g.user == "" {
		return "", fmt.Errorf("--user is required")
	}
	return g.user, nil
}

// withApp opens the application, runs fn and closes it.
func (g *globals) withApp(cmd *cobra.Command, fn func(a *app.App, user string) error) error {
	user, err := g.requireUser()
	if err != nil {
		return err
	}
	a, err := g.open(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), "warning: close failed:", cerr)
		}
	}()
	return fn(a, user)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
