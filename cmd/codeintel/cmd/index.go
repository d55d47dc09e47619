package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/codeintel-engine/codeintel/internal/config"
	"github.com/codeintel-engine/codeintel/internal/indexer"
)

func newIndexCmd() *cobra.Command {
	var (
		force   bool
		incremental bool
	)

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Index a directory for semantic search",
		Long: `Index a directory: scan files, chunk them into AST-aware units,
embed the chunks through the orchestrator, and persist the result to the
content store and relationship graph.

By default this runs a full index. Use --incremental to skip files whose
content hash hasn't changed, or --force to clear the existing index and
rebuild from scratch.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			if force && incremental {
				return fmt.Errorf("--force and --incremental are mutually exclusive")
			}
			return runIndex(ctx, cmd, path, force, incremental)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Clear the existing index and rebuild from scratch")
	cmd.Flags().BoolVar(&incremental, "incremental", false, "Only (re)index files whose content hash changed")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, path string, force, incremental bool) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("access path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", absPath)
	}

	root, err := config.FindProjectRoot(absPath)
	if err != nil {
		root = absPath
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

	mode := indexer.ModeFull
	switch {
	case force:
		mode = indexer.ModeReindex
	case incremental:
		mode = indexer.ModeIncremental
	}

	var result *indexer.Result
	switch mode {
	case indexer.ModeReindex:
		result, err = p.Indexer.Reindex(ctx)
	case indexer.ModeIncremental:
		result, err = p.Indexer.RunIncremental(ctx)
	default:
		result, err = p.Indexer.RunFull(ctx)
	}
	if err != nil {
		return fmt.Errorf("index: %w", err)
	}

	slog.Info("index complete",
		slog.String("mode", string(result.Mode)),
		slog.Int("files_scanned", result.FilesScanned),
		slog.Int("files_processed", result.FilesProcessed),
		slog.Int("chunks_added", result.ChunksAdded),
		slog.Int("chunks_reused", result.ChunksReused),
		slog.Int("chunks_removed", result.ChunksRemoved),
		slog.Int("errors", len(result.Errors)))

	_, printErr := fmt.Fprintf(cmd.OutOrStdout(),
		"Indexed %s: %d files processed, %d chunks added, %d reused, %d removed (%d errors) in %s\n",
		root, result.FilesProcessed, result.ChunksAdded, result.ChunksReused, result.ChunksRemoved,
		len(result.Errors), result.Duration)
	return printErr
}
