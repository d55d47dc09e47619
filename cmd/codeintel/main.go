// Package main provides the entry point for the codeintel CLI.
package main

import (
	"context"
	"os"

	"github.com/codeintel-engine/codeintel/cmd/codeintel/cmd"
	"github.com/codeintel-engine/codeintel/internal/worker"
)

func main() {
	// Hidden re-exec entrypoint: a worker.Supervisor spawns this same
	// binary with "__worker__" as argv[1] to run as an embedding worker
	// process, communicating over stdin/stdout. This must be checked
	// before cobra parses any flags.
	if len(os.Args) > 1 && os.Args[1] == "__worker__" {
		runWorker()
		return
	}

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// runWorker loads the worker's in-process model and serves embed_batch
// requests from the supervisor until stdin closes.
func runWorker() {
	proc := worker.NewProcess(worker.NewStaticModel)
	if err := proc.Run(context.Background(), os.Stdin, os.Stdout); err != nil {
		os.Exit(1)
	}
}
