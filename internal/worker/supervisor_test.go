package worker

import (
	"context"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHelperProcess is not a real test: it is exec'd by TestSupervisor_*
// as a stand-in worker process, following the standard os/exec
// subprocess-testing idiom (see os/exec's own exec_test.go). It runs only
// when GO_WANT_HELPER_PROCESS=1 is set in its environment.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	defer os.Exit(0)

	p := NewProcess(func() Model { return NewStaticModel() })
	_ = p.Run(context.Background(), os.Stdin, os.Stdout)
}

func helperSupervisorConfig(poolSize int) SupervisorConfig {
	self, _ := exec.LookPath(os.Args[0])
	if self == "" {
		self = os.Args[0]
	}
	return SupervisorConfig{
		PoolSize:       poolSize,
		SelfPath:       self,
		WorkerArgs:     []string{"-test.run=TestHelperProcess", "--"},
		Env:            []string{"GO_WANT_HELPER_PROCESS=1"},
		RespawnBackoff: 10 * time.Millisecond,
	}
}

func TestSupervisor_EmbedBatch_RoundTrips(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := NewSupervisor(ctx, helperSupervisorConfig(1))
	require.NoError(t, err)
	defer s.Shutdown()

	embeddings, err := s.EmbedBatch(ctx, []string{"func main() {}", "package main"})
	require.NoError(t, err)
	assert.Len(t, embeddings, 2)
}

func TestSupervisor_RoundRobinsAcrossWorkers(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := NewSupervisor(ctx, helperSupervisorConfig(2))
	require.NoError(t, err)
	defer s.Shutdown()
	assert.Equal(t, 2, s.Size())

	for i := 0; i < 4; i++ {
		_, err := s.EmbedBatch(ctx, []string{"x"})
		require.NoError(t, err)
	}
}
