package indexer

import (
	"context"
	"log/slog"

	"github.com/codeintel-engine/codeintel/internal/config"
	"github.com/codeintel-engine/codeintel/internal/watcher"
)

// liveIngress watches the project root for changes and feeds them back
// through the same per-file pipeline a full/incremental run uses, so a
// running server stays current without a periodic rescan. HybridWatcher
// already debounces and coalesces bursts of fsnotify/polling events into
// batches, so live ingress only needs to dispatch each batch.
type liveIngress struct {
	ix      *Indexer
	cfg     config.IndexerConfig
	watcher *watcher.HybridWatcher
	cancel  context.CancelFunc
	done    chan struct{}
}

func newLiveIngress(ix *Indexer, cfg config.IndexerConfig) *liveIngress {
	return &liveIngress{ix: ix, cfg: cfg}
}

// Start begins watching rootDir for changes. Safe to call once per
// Indexer; call stop (via Indexer.Close) to release the watcher.
func (li *liveIngress) start(ctx context.Context, rootDir string) error {
	window := li.cfg.DebounceWindow
	if window <= 0 {
		window = watcher.DefaultOptions().DebounceWindow
	}

	w, err := watcher.NewHybridWatcher(watcher.Options{DebounceWindow: window})
	if err != nil {
		return err
	}
	if err := w.Start(ctx, rootDir); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	li.watcher = w
	li.cancel = cancel
	li.done = make(chan struct{})

	go li.loop(runCtx)
	return nil
}

func (li *liveIngress) loop(ctx context.Context) {
	defer close(li.done)
	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-li.watcher.Events():
			if !ok {
				return
			}
			li.handleBatch(ctx, batch)
		case err, ok := <-li.watcher.Errors():
			if !ok {
				continue
			}
			slog.Warn("live ingress watcher error", slog.Any("error", err))
		}
	}
}

// handleBatch applies a debounced batch of file events, capped at
// BatchSize files per batch so one enormous git checkout doesn't block
// live ingress from reporting progress for an unbounded time.
func (li *liveIngress) handleBatch(ctx context.Context, events []watcher.FileEvent) {
	limit := li.cfg.BatchSize
	if limit > 0 && len(events) > limit {
		slog.Warn("live ingress batch exceeds configured size, truncating",
			slog.Int("batch_size", len(events)), slog.Int("limit", limit))
		events = events[:limit]
	}

	for _, ev := range events {
		if ev.IsDir {
			continue
		}
		switch ev.Operation {
		case watcher.OpDelete:
			li.handleDelete(ctx, ev.Path)
		case watcher.OpRename:
			if ev.OldPath != "" {
				li.handleDelete(ctx, ev.OldPath)
			}
			li.handleUpsert(ctx, ev.Path)
		case watcher.OpGitignoreChange, watcher.OpConfigChange:
			// Reconciliation of newly (un)ignored files happens on the next
			// scheduled full/incremental run; live ingress only reacts to
			// individual file content changes.
		default:
			li.handleUpsert(ctx, ev.Path)
		}
	}
}

func (li *liveIngress) handleUpsert(ctx context.Context, path string) {
	if _, err := li.ix.HandleFileChange(ctx, path, false); err != nil {
		slog.Warn("live ingress failed to process file", slog.String("path", path), slog.Any("error", err))
	}
}

func (li *liveIngress) handleDelete(ctx context.Context, path string) {
	if _, err := li.ix.HandleFileChange(ctx, path, true); err != nil {
		slog.Warn("live ingress failed to remove file", slog.String("path", path), slog.Any("error", err))
	}
}

func (li *liveIngress) stop() {
	if li.cancel == nil {
		return
	}
	li.cancel()
	if li.watcher != nil {
		li.watcher.Stop()
	}
	<-li.done
}
