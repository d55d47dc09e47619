package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/codeintel-engine/codeintel/internal/config"
)

func TestProjectID_IsStableForSamePath(t *testing.T) {
	id1 := projectID("/home/user/repo")
	id2 := projectID("/home/user/repo")

	assert.Equal(t, id1, id2)
	assert.Len(t, id1, 16)
}

func TestProjectID_DiffersForDifferentPaths(t *testing.T) {
	id1 := projectID("/home/user/repo-a")
	id2 := projectID("/home/user/repo-b")

	assert.NotEqual(t, id1, id2)
}

func TestProjectID_ResolvesRelativePaths(t *testing.T) {
	abs := projectID("/home/user/repo")
	rel := projectID("./repo")

	assert.NotEqual(t, abs, rel, "a relative path resolves against the working directory, not against the absolute one")
}

func TestOrchestratorConfig_CopiesAllFields(t *testing.T) {
	src := config.OrchestratorConfig{
		ConcurrencyMin:     2,
		ConcurrencyMax:     32,
		ConcurrencyInitial: 8,
		CircuitMaxFailures: 4,
	}

	cfg := orchestratorConfig(src)

	assert.Equal(t, 2, cfg.ConcurrencyMin)
	assert.Equal(t, 32, cfg.ConcurrencyMax)
	assert.Equal(t, 8, cfg.ConcurrencyInitial)
	assert.Equal(t, 4, cfg.CircuitMaxFailures)
}
