package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"
)

// Process is the worker-side half of the protocol: it reads Requests from
// stdin, invokes the model sequentially under a single mutex, and writes
// Responses to stdout. Run inside a child OS process spawned by Supervisor.
type Process struct {
	mu       sync.Mutex
	workerID string
	newModel func() Model
	model    Model
}

// NewProcess returns a worker-process handler. newModel is called at most
// once, lazily, on the first embed_batch request — the model instance is
// not loaded just to answer init.
func NewProcess(newModel func() Model) *Process {
	return &Process{newModel: newModel}
}

// Run reads requests from in and writes responses to out until in is
// exhausted or ctx is cancelled. Each request is fully handled (including
// model invocation) before the next is read, so the model is never called
// concurrently with itself.
func (p *Process) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	dec := json.NewDecoder(in)
	enc := json.NewEncoder(out)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var req Request
		if err := dec.Decode(&req); err != nil {
			if err == io.EOF {
				return p.shutdown()
			}
			return fmt.Errorf("worker: decode request: %w", err)
		}

		resp, err := p.handle(ctx, req)
		if err != nil {
			return err
		}
		if err := enc.Encode(resp); err != nil {
			return fmt.Errorf("worker: encode response: %w", err)
		}
	}
}

func (p *Process) handle(ctx context.Context, req Request) (Response, error) {
	switch req.Method {
	case MethodInit:
		p.workerID = req.WorkerID
		return Response{Method: MethodInitComplete, WorkerID: p.workerID}, nil

	case MethodEmbedBatch:
		return p.handleEmbedBatch(ctx, req), nil

	default:
		return Response{}, fmt.Errorf("worker: unknown method %q", req.Method)
	}
}

func (p *Process) handleEmbedBatch(ctx context.Context, req Request) Response {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.model == nil {
		p.model = p.newModel()
	}

	start := time.Now()
	embeddings, err := p.model.EmbedBatch(ctx, req.Texts)
	stats := &BatchStats{Count: len(req.Texts), Duration: time.Since(start)}

	if err != nil {
		return Response{
			Method:  MethodEmbedComplete,
			BatchID: req.BatchID,
			Error:   err.Error(),
			Stats:   stats,
		}
	}
	return Response{
		Method:     MethodEmbedComplete,
		BatchID:    req.BatchID,
		Embeddings: embeddings,
		Dimensions: p.model.Dimensions(),
		ModelName:  p.model.ModelName(),
		Stats:      stats,
	}
}

// shutdown releases the loaded model, if any, before the process exits.
func (p *Process) shutdown() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.model == nil {
		return nil
	}
	return p.model.Close()
}
