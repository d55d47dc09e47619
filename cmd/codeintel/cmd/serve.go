package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/codeintel-engine/codeintel/internal/config"
	"github.com/codeintel-engine/codeintel/internal/logging"
	"github.com/codeintel-engine/codeintel/internal/mcpserver"
)

func newServeCmd() *cobra.Command {
	var (
		transport string
		debug     bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the MCP server, exposing search, index, handle_file_change, and
index_status as tools and the indexed files as resources.

The MCP protocol requires stdout to carry JSON-RPC frames exclusively, so
all diagnostic output goes to the debug log file instead of stdout.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, transport, debug)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport to serve on (stdio)")
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging to the log file")

	return cmd
}

func runServe(ctx context.Context, transport string, debug bool) error {
	// MCP clients speak JSON-RPC over stdout; nothing else may write there.
	// Route all logging to the file-based logger instead.
	logCfg := logging.DefaultConfig()
	logCfg.WriteToStderr = false
	if debug {
		logCfg.Level = "debug"
	}
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer cleanup()
	slog.SetDefault(logger)

	root, err := config.FindProjectRoot(".")
	if err != nil {
		root, _ = os.Getwd()
	}

	cfg, err := config.Load(root)
	if err != nil {
		cfg = config.NewConfig()
	}

	p, err := buildPipeline(ctx, cfg, root)
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}
	defer p.Close()

	if err := p.Indexer.StartLiveIngress(ctx); err != nil {
		slog.Warn("live file watcher failed to start, serving stale index", slog.String("error", err.Error()))
	}

	srv, err := mcpserver.NewServer(p.Indexer, p.Store, p.Graph, p.Orchestrator, cfg, root)
	if err != nil {
		return fmt.Errorf("create MCP server: %w", err)
	}
	defer func() { _ = srv.Close() }()

	if err := srv.RegisterResources(ctx); err != nil {
		slog.Warn("failed to register file resources", slog.String("error", err.Error()))
	}

	return srv.Serve(ctx, transport)
}
