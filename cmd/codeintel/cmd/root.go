// Package cmd provides the CLI commands for codeintel.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/codeintel-engine/codeintel/pkg/version"
)

// NewRootCmd creates the root command for the codeintel CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "codeintel",
		Short: "Semantic code intelligence engine",
		Long: `codeintel indexes a codebase into content-addressed, AST-aware chunks,
embeds them through an adaptive orchestrator, and serves relationship-aware
retrieval over the Model Context Protocol.

Run 'codeintel index' to build the index, then 'codeintel serve' to expose
it to an MCP client, or 'codeintel search' for a one-off query.`,
		Version: version.Version,
	}

	cmd.SetVersionTemplate("codeintel version {{.Version}}\n")

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
