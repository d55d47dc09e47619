package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"
)

// SupervisorConfig configures a pool of worker processes.
type SupervisorConfig struct {
	// PoolSize is the number of worker processes to maintain.
	PoolSize int
	// SelfPath is the executable to spawn (defaults to os.Executable()).
	SelfPath string
	// WorkerArgs are the arguments that put SelfPath into worker mode, e.g.
	// the hidden subcommand a cmd/ entrypoint checks for before parsing any
	// real CLI flags.
	WorkerArgs []string
	// RespawnBackoff is the minimum delay before a crashed worker is
	// replaced, avoiding a crash-loop busy spin.
	RespawnBackoff time.Duration
	// Env, if non-nil, is appended to the spawned process's environment
	// (which otherwise inherits the supervisor's own via os/exec's default).
	Env []string
}

// DefaultSupervisorConfig returns a one-worker pool running this process's
// own binary in worker mode.
func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{
		PoolSize:       1,
		WorkerArgs:     []string{"__worker__"},
		RespawnBackoff: 500 * time.Millisecond,
	}
}

// Supervisor owns a fixed-size pool of worker processes and dispatches
// embed_batch requests to them, replacing any process that crashes.
type Supervisor struct {
	cfg  SupervisorConfig
	self string

	mu      sync.Mutex
	workers []*workerHandle
	next    uint64

	batchSeq uint64
}

type workerHandle struct {
	mu  sync.Mutex // one in-flight request at a time: the embed call is sequential
	id  string
	cmd *exec.Cmd

	stdin  io.WriteCloser
	dec    *json.Decoder
	enc    *json.Encoder
	closer io.Closer

	dead     atomic.Bool
	waitDone chan struct{} // closed once cmd.Wait() has returned
}

// NewSupervisor starts cfg.PoolSize worker processes and returns once all
// have completed init.
func NewSupervisor(ctx context.Context, cfg SupervisorConfig) (*Supervisor, error) {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 1
	}
	if cfg.RespawnBackoff <= 0 {
		cfg.RespawnBackoff = 500 * time.Millisecond
	}

	self := cfg.SelfPath
	if self == "" {
		path, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("worker: resolve self executable: %w", err)
		}
		self = path
	}

	s := &Supervisor{cfg: cfg, self: self}
	for i := 0; i < cfg.PoolSize; i++ {
		w, err := s.spawn(ctx, fmt.Sprintf("worker-%d", i))
		if err != nil {
			s.Shutdown()
			return nil, err
		}
		s.workers = append(s.workers, w)
	}
	return s, nil
}

func (s *Supervisor) spawn(ctx context.Context, id string) (*workerHandle, error) {
	cmd := exec.CommandContext(ctx, s.self, s.cfg.WorkerArgs...)
	cmd.Stderr = os.Stderr
	if s.cfg.Env != nil {
		cmd.Env = append(os.Environ(), s.cfg.Env...)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("worker: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("worker: stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("worker: start process: %w", err)
	}

	w := &workerHandle{
		id:       id,
		cmd:      cmd,
		stdin:    stdin,
		dec:      json.NewDecoder(stdout),
		enc:      json.NewEncoder(stdin),
		closer:   stdin,
		waitDone: make(chan struct{}),
	}

	go func() {
		_ = cmd.Wait() // reaps the process; exit observed via dead flag on next I/O error
		w.dead.Store(true)
		close(w.waitDone)
	}()

	if err := w.enc.Encode(Request{Method: MethodInit, WorkerID: id}); err != nil {
		return nil, fmt.Errorf("worker: send init: %w", err)
	}
	var resp Response
	if err := w.dec.Decode(&resp); err != nil {
		return nil, fmt.Errorf("worker: await init_complete: %w", err)
	}
	if resp.Method != MethodInitComplete {
		return nil, fmt.Errorf("worker: expected init_complete, got %q", resp.Method)
	}

	return w, nil
}

// EmbedBatch sends texts to the next available worker (round robin) and
// returns its embeddings, respawning the worker first if a prior call
// detected it had crashed.
func (s *Supervisor) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	s.mu.Lock()
	idx := s.next % uint64(len(s.workers))
	s.next++
	w := s.workers[idx]
	s.mu.Unlock()

	if w.dead.Load() {
		replacement, err := s.spawn(ctx, w.id)
		if err != nil {
			time.Sleep(s.cfg.RespawnBackoff)
			return nil, fmt.Errorf("worker: respawn %s: %w", w.id, err)
		}
		s.mu.Lock()
		s.workers[idx] = replacement
		s.mu.Unlock()
		w = replacement
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	batchID := fmt.Sprintf("batch-%d", atomic.AddUint64(&s.batchSeq, 1))
	if err := w.enc.Encode(Request{Method: MethodEmbedBatch, BatchID: batchID, Texts: texts}); err != nil {
		w.dead.Store(true)
		return nil, fmt.Errorf("worker: send embed_batch to %s: %w", w.id, err)
	}

	var resp Response
	if err := w.dec.Decode(&resp); err != nil {
		w.dead.Store(true)
		return nil, fmt.Errorf("worker: %s crashed mid-batch: %w", w.id, err)
	}
	if resp.BatchID != batchID {
		w.dead.Store(true)
		return nil, fmt.Errorf("worker: %s returned mismatched batch_id %q for %q", w.id, resp.BatchID, batchID)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("worker: %s embed_batch failed: %s", w.id, resp.Error)
	}
	return resp.Embeddings, nil
}

// Shutdown closes every worker's stdin (signalling it to release its model
// and exit) and waits briefly before killing any that didn't.
func (s *Supervisor) Shutdown() error {
	s.mu.Lock()
	workers := s.workers
	s.mu.Unlock()

	for _, w := range workers {
		_ = w.closer.Close()
	}

	done := make(chan struct{})
	go func() {
		for _, w := range workers {
			<-w.waitDone
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		for _, w := range workers {
			if !w.dead.Load() {
				_ = w.cmd.Process.Kill()
			}
		}
	}
	return nil
}

// Size returns the configured pool size.
func (s *Supervisor) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.workers)
}
