// Package worker runs embedding models in isolated OS processes, one model
// instance per process, communicating with the orchestrator over stdin and
// stdout using newline-delimited JSON frames.
package worker

import "time"

// Method names exchanged between the supervisor (parent) and a worker
// process (child) over stdin/stdout.
const (
	MethodInit       = "init"
	MethodEmbedBatch = "embed_batch"
)

// Response methods a worker process sends back.
const (
	MethodInitComplete  = "init_complete"
	MethodEmbedComplete = "embed_complete"
)

// Request is a single frame sent from the supervisor to a worker process.
// Exactly one of the method-specific fields is populated per Method.
type Request struct {
	Method   string   `json:"method"`
	WorkerID string   `json:"worker_id,omitempty"`
	BatchID  string   `json:"batch_id,omitempty"`
	Texts    []string `json:"texts,omitempty"`
}

// BatchStats reports timing for a completed batch.
type BatchStats struct {
	Count    int           `json:"count"`
	Duration time.Duration `json:"duration_ns"`
}

// Response is a single frame sent from a worker process back to the
// supervisor. embed_complete carries either Embeddings or Error, never both.
type Response struct {
	Method     string      `json:"method"`
	WorkerID   string      `json:"worker_id,omitempty"`
	Dimensions int         `json:"dimensions,omitempty"`
	ModelName  string      `json:"model_name,omitempty"`
	BatchID    string      `json:"batch_id,omitempty"`
	Embeddings [][]float32 `json:"embeddings,omitempty"`
	Error      string      `json:"error,omitempty"`
	Stats      *BatchStats `json:"stats,omitempty"`
}
