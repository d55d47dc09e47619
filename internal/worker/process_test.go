package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeRequests(t *testing.T, reqs ...Request) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	for _, r := range reqs {
		require.NoError(t, enc.Encode(r))
	}
	return buf
}

func decodeResponses(t *testing.T, data []byte) []Response {
	t.Helper()
	dec := json.NewDecoder(bytes.NewReader(data))
	var out []Response
	for {
		var r Response
		if err := dec.Decode(&r); err != nil {
			break
		}
		out = append(out, r)
	}
	return out
}

func TestProcess_InitThenEmbedBatch(t *testing.T) {
	in := encodeRequests(t,
		Request{Method: MethodInit, WorkerID: "w0"},
		Request{Method: MethodEmbedBatch, BatchID: "b1", Texts: []string{"func main() {}", "package main"}},
	)
	out := &bytes.Buffer{}

	loaded := 0
	p := NewProcess(func() Model {
		loaded++
		return NewStaticModel()
	})

	require.NoError(t, p.Run(context.Background(), in, out))

	responses := decodeResponses(t, out.Bytes())
	require.Len(t, responses, 2)

	assert.Equal(t, MethodInitComplete, responses[0].Method)
	assert.Equal(t, "w0", responses[0].WorkerID)

	assert.Equal(t, MethodEmbedComplete, responses[1].Method)
	assert.Equal(t, "b1", responses[1].BatchID)
	assert.Len(t, responses[1].Embeddings, 2)
	assert.Empty(t, responses[1].Error)
	require.NotNil(t, responses[1].Stats)
	assert.Equal(t, 2, responses[1].Stats.Count)

	assert.Equal(t, 1, loaded, "model must load lazily, exactly once")
}

func TestProcess_ModelNotLoadedUntilFirstEmbedBatch(t *testing.T) {
	in := encodeRequests(t, Request{Method: MethodInit, WorkerID: "w0"})
	out := &bytes.Buffer{}

	loaded := false
	p := NewProcess(func() Model {
		loaded = true
		return NewStaticModel()
	})

	require.NoError(t, p.Run(context.Background(), in, out))
	assert.False(t, loaded)
}

func TestProcess_UnknownMethodReturnsError(t *testing.T) {
	in := encodeRequests(t, Request{Method: "not_a_method"})
	out := &bytes.Buffer{}

	p := NewProcess(func() Model { return NewStaticModel() })
	err := p.Run(context.Background(), in, out)
	assert.Error(t, err)
}
