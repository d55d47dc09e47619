package analyze

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeintel-engine/codeintel/internal/chunk"
	"github.com/codeintel-engine/codeintel/internal/graph"
)

func parse(t *testing.T, source, language string) *chunk.Tree {
	t.Helper()
	p := chunk.NewParser()
	defer p.Close()
	tree, err := p.Parse(context.Background(), []byte(source), language)
	require.NoError(t, err)
	return tree
}

func findSymbol(result *FileAnalysisResult, name string) *graph.Symbol {
	for _, s := range result.Symbols {
		if s.Name == name {
			return s
		}
	}
	return nil
}

func TestAnalyze_GoFile_ExtractsFunctionSymbols(t *testing.T) {
	src := `package main

func Helper() int {
	return 1
}

func main() {
	x := Helper()
	_ = x
}
`
	tree := parse(t, src, "go")
	result := New(nil).Analyze(tree, "main.go")

	assert.NotNil(t, findSymbol(result, "Helper"))
	assert.NotNil(t, findSymbol(result, "main"))
	assert.Empty(t, result.Errors)
}

func TestAnalyze_GoFile_ResolvesIntraFileCall(t *testing.T) {
	src := `package main

func Helper() int {
	return 1
}

func main() {
	Helper()
}
`
	tree := parse(t, src, "go")
	result := New(nil).Analyze(tree, "main.go")

	helper := findSymbol(result, "Helper")
	main := findSymbol(result, "main")
	require.NotNil(t, helper)
	require.NotNil(t, main)

	var found *graph.Relationship
	for _, rel := range result.Relationships {
		if rel.Type == graph.RelCalls && rel.To == helper.ID {
			found = rel
		}
	}
	require.NotNil(t, found, "expected a calls relationship targeting Helper")
	assert.Equal(t, main.ID, found.From)
	assert.Equal(t, intraFileCallConfidence, found.Confidence)
	assert.Equal(t, intraFileCallStrength, found.Strength)
}

func TestAnalyze_GoFile_UnresolvedCallUsesHeuristicConfidence(t *testing.T) {
	src := `package main

func main() {
	fmt.Println("hi")
}
`
	tree := parse(t, src, "go")
	result := New(nil).Analyze(tree, "main.go")

	var found *graph.Relationship
	for _, rel := range result.Relationships {
		if rel.Type == graph.RelCalls && rel.To == "external:Println" {
			found = rel
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, heuristicConfidence, found.Confidence)
	assert.Equal(t, "false", found.Metadata["resolved"])
}

type stubResolver struct {
	id string
	ok bool
}

func (s stubResolver) Resolve(name string) (string, bool) {
	return s.id, s.ok
}

func TestAnalyze_GoFile_CrossFileCallUsesResolver(t *testing.T) {
	src := `package main

func main() {
	DoWork()
}
`
	tree := parse(t, src, "go")
	resolver := stubResolver{id: "other.go:DoWork:3", ok: true}
	result := New(resolver).Analyze(tree, "main.go")

	var found *graph.Relationship
	for _, rel := range result.Relationships {
		if rel.Type == graph.RelCalls && rel.To == "other.go:DoWork:3" {
			found = rel
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, crossFileCallConfidence, found.Confidence)
	assert.Equal(t, crossFileCallStrength, found.Strength)
}

func TestAnalyze_GoFile_ExtractsImports(t *testing.T) {
	src := `package main

import "fmt"

func main() {
	fmt.Println("hi")
}
`
	tree := parse(t, src, "go")
	result := New(nil).Analyze(tree, "main.go")

	require.Len(t, result.Imports, 1)
	assert.Equal(t, "fmt", result.Imports[0].Source)

	var found bool
	for _, rel := range result.Relationships {
		if rel.Type == graph.RelImports && rel.To == "external:fmt" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestAnalyze_GoFile_ExportsCapitalizedTopLevelNames(t *testing.T) {
	src := `package main

func Public() {}

func private() {}
`
	tree := parse(t, src, "go")
	result := New(nil).Analyze(tree, "main.go")

	var names []string
	for _, e := range result.Exports {
		names = append(names, e.Name)
	}
	assert.Contains(t, names, "Public")
	assert.NotContains(t, names, "private")
}

func TestAnalyze_NilTree_ReturnsError(t *testing.T) {
	result := New(nil).Analyze(nil, "main.go")
	require.Len(t, result.Errors, 1)
	assert.Empty(t, result.Symbols)
}

func TestAnalyze_UnsupportedLanguage_ReturnsError(t *testing.T) {
	tree := &chunk.Tree{Root: &chunk.Node{Type: "program"}, Language: "rust"}
	result := New(nil).Analyze(tree, "main.rs")
	require.Len(t, result.Errors, 1)
}
