// Package analyze extracts symbols and typed relationships from a parsed
// source file, feeding internal/graph's symbol table and relationship
// graph. It reuses internal/chunk's tree-sitter node-walking approach:
// the same traversal that finds function/class nodes for chunking is
// extended here to additionally find import statements, call expressions,
// and assignment/return/property-access sites.
package analyze

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/codeintel-engine/codeintel/internal/chunk"
	"github.com/codeintel-engine/codeintel/internal/graph"
)

// Confidence/strength defaults per the relationship analyzer's contract.
const (
	intraFileCallConfidence = 1.0
	intraFileCallStrength   = 0.9
	crossFileCallConfidence = 0.9
	crossFileCallStrength   = 0.8
	heuristicConfidence     = 0.5
	heuristicStrength       = 0.5
)

// AnalysisError is a non-fatal problem found while analyzing a file; it is
// recorded and surfaced but never aborts indexing.
type AnalysisError struct {
	FilePath string
	Line     int
	Message  string
}

func (e AnalysisError) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.FilePath, e.Line, e.Message)
}

// ImportRef is one import statement's module source and the names it
// brings into scope (empty Names means "whole module", e.g. a Go import
// with no explicit identifiers pulled in).
type ImportRef struct {
	Source string
	Names  []string
	Line   int
}

// ExportRef is one symbol a file exposes to importers.
type ExportRef struct {
	Name string
	Line int
}

// FileAnalysisResult is the output of analyzing one parsed file.
type FileAnalysisResult struct {
	Symbols       []*graph.Symbol
	Relationships []*graph.Relationship
	Imports       []ImportRef
	Exports       []ExportRef
	Errors        []AnalysisError
}

// Resolver resolves a call target name to a symbol elsewhere in the
// repository, for cross-file call resolution. The indexer backs this with
// a name index derived from symbols already installed in the relationship
// graph; Analyze works without one (all cross-file calls then come back
// unresolved) so it can run standalone during tests or a first pass.
type Resolver interface {
	Resolve(name string) (symbolID string, ok bool)
}

// Analyzer extracts a FileAnalysisResult from a parsed file.
type Analyzer struct {
	extractor *chunk.SymbolExtractor
	resolver  Resolver
}

// New constructs an Analyzer. resolver may be nil.
func New(resolver Resolver) *Analyzer {
	return &Analyzer{
		extractor: chunk.NewSymbolExtractor(),
		resolver:  resolver,
	}
}

// scopedSymbol pairs a graph.Symbol with the node interval it owns, so
// a call/assignment/import site found elsewhere in the tree can be
// attributed to the innermost declaration containing it.
type scopedSymbol struct {
	sym       *graph.Symbol
	startLine int
	endLine   int
}

// Analyze walks tree and produces symbols, relationships, imports, and
// exports for filePath. Parse or extraction problems are recorded as
// AnalysisError and never returned as a hard error.
func (a *Analyzer) Analyze(tree *chunk.Tree, filePath string) *FileAnalysisResult {
	result := &FileAnalysisResult{}

	if tree == nil || tree.Root == nil {
		result.Errors = append(result.Errors, AnalysisError{FilePath: filePath, Message: "empty parse tree"})
		return result
	}

	syn, ok := syntaxFor(tree.Language)
	if !ok {
		result.Errors = append(result.Errors, AnalysisError{
			FilePath: filePath,
			Message:  fmt.Sprintf("unsupported language %q for relationship analysis", tree.Language),
		})
		return result
	}

	chunkSymbols := a.extractor.Extract(tree, tree.Source)
	scoped := make([]scopedSymbol, 0, len(chunkSymbols))
	byName := make(map[string][]*graph.Symbol)

	for _, cs := range chunkSymbols {
		gs := &graph.Symbol{
			ID:        symbolID(filePath, cs.Name, cs.StartLine),
			Name:      cs.Name,
			Kind:      graphKind(cs.Type),
			FilePath:  filePath,
			StartLine: cs.StartLine,
			EndLine:   cs.EndLine,
		}
		result.Symbols = append(result.Symbols, gs)
		scoped = append(scoped, scopedSymbol{sym: gs, startLine: cs.StartLine, endLine: cs.EndLine})
		byName[cs.Name] = append(byName[cs.Name], gs)
	}
	// Smallest range first, so findEnclosing picks the innermost scope.
	sort.Slice(scoped, func(i, j int) bool {
		return (scoped[i].endLine - scoped[i].startLine) < (scoped[j].endLine - scoped[j].startLine)
	})

	moduleSymbol := &graph.Symbol{
		ID:       filePath + ":<module>",
		Name:     "<module>",
		Kind:     graph.SymbolKindModule,
		FilePath: filePath,
	}
	result.Symbols = append(result.Symbols, moduleSymbol)

	findEnclosing := func(line int) *graph.Symbol {
		for _, s := range scoped {
			if line >= s.startLine && line <= s.endLine {
				return s.sym
			}
		}
		return moduleSymbol
	}

	result.Imports = extractImports(tree.Root, tree.Source, syn)
	for _, imp := range result.Imports {
		result.Relationships = append(result.Relationships, &graph.Relationship{
			From:       moduleSymbol.ID,
			To:         "external:" + imp.Source,
			Type:       graph.RelImports,
			Strength:   heuristicStrength,
			Confidence: heuristicConfidence,
			Metadata:   map[string]string{"flowType": "import"},
		})
	}

	result.Exports = extractExports(tree.Root, tree.Source, tree.Language, syn, chunkSymbols)

	a.walkRelationships(tree.Root, tree.Source, syn, filePath, findEnclosing, byName, result)

	return result
}

// walkRelationships recurses the tree looking for call/assignment/return/
// member-access nodes and records a Relationship for each, attributed to
// whichever symbol's line range encloses the site.
func (a *Analyzer) walkRelationships(
	n *chunk.Node,
	source []byte,
	syn langSyntax,
	filePath string,
	findEnclosing func(line int) *graph.Symbol,
	byName map[string][]*graph.Symbol,
	result *FileAnalysisResult,
) {
	if n == nil {
		return
	}
	line := int(n.StartPoint.Row) + 1

	switch {
	case containsType(syn.callExpr, n.Type):
		a.recordCall(n, source, syn, line, findEnclosing, byName, result)
	case containsType(syn.assignStmt, n.Type):
		a.recordAssignment(n, source, syn, line, findEnclosing, result)
	case containsType(syn.returnStmt, n.Type):
		a.recordReturn(n, source, syn, line, findEnclosing, result)
	case containsType(syn.selectorExpr, n.Type):
		a.recordAccess(n, source, syn, line, findEnclosing, result)
	}

	for _, child := range n.Children {
		a.walkRelationships(child, source, syn, filePath, findEnclosing, byName, result)
	}
}

func (a *Analyzer) recordCall(n *chunk.Node, source []byte, syn langSyntax, line int, findEnclosing func(int) *graph.Symbol, byName map[string][]*graph.Symbol, result *FileAnalysisResult) {
	if len(n.Children) == 0 {
		return
	}
	callee := n.Children[0]
	name := rightmostIdentifier(callee, source, syn)
	if name == "" {
		return
	}

	from := findEnclosing(line)

	if candidates, ok := byName[name]; ok && len(candidates) > 0 {
		result.Relationships = append(result.Relationships, &graph.Relationship{
			From: from.ID, To: candidates[0].ID, Type: graph.RelCalls,
			Strength: intraFileCallStrength, Confidence: intraFileCallConfidence,
			Metadata: map[string]string{"flowType": "call"},
		})
		return
	}

	if a.resolver != nil {
		if id, ok := a.resolver.Resolve(name); ok {
			result.Relationships = append(result.Relationships, &graph.Relationship{
				From: from.ID, To: id, Type: graph.RelCalls,
				Strength: crossFileCallStrength, Confidence: crossFileCallConfidence,
				Metadata: map[string]string{"flowType": "call"},
			})
			return
		}
	}

	result.Relationships = append(result.Relationships, &graph.Relationship{
		From: from.ID, To: "external:" + name, Type: graph.RelCalls,
		Strength: heuristicStrength, Confidence: heuristicConfidence,
		Metadata: map[string]string{"flowType": "call", "resolved": "false"},
	})
}

func (a *Analyzer) recordAssignment(n *chunk.Node, source []byte, syn langSyntax, line int, findEnclosing func(int) *graph.Symbol, result *FileAnalysisResult) {
	name := firstIdentifier(n, source, syn)
	if name == "" {
		return
	}
	from := findEnclosing(line)
	result.Relationships = append(result.Relationships, &graph.Relationship{
		From: from.ID, To: "external:" + name, Type: graph.RelAssigns,
		Strength: heuristicStrength, Confidence: heuristicConfidence,
		Metadata: map[string]string{"flowType": "assignment"},
	})
}

func (a *Analyzer) recordReturn(n *chunk.Node, source []byte, syn langSyntax, line int, findEnclosing func(int) *graph.Symbol, result *FileAnalysisResult) {
	name := firstIdentifier(n, source, syn)
	if name == "" {
		return
	}
	from := findEnclosing(line)
	result.Relationships = append(result.Relationships, &graph.Relationship{
		From: from.ID, To: "external:" + name, Type: graph.RelDataFlow,
		Strength: heuristicStrength, Confidence: heuristicConfidence,
		Metadata: map[string]string{"flowType": "return"},
	})
}

func (a *Analyzer) recordAccess(n *chunk.Node, source []byte, syn langSyntax, line int, findEnclosing func(int) *graph.Symbol, result *FileAnalysisResult) {
	name := rightmostIdentifier(n, source, syn)
	if name == "" {
		return
	}
	from := findEnclosing(line)
	result.Relationships = append(result.Relationships, &graph.Relationship{
		From: from.ID, To: "external:" + name, Type: graph.RelAccesses,
		Strength: heuristicStrength, Confidence: heuristicConfidence,
		Metadata: map[string]string{"flowType": "property_access"},
	})
}

// rightmostIdentifier returns the last identifier-like leaf under n,
// which for a selector/member/attribute expression is the accessed
// field or method name (the part closest to call-site resolution).
func rightmostIdentifier(n *chunk.Node, source []byte, syn langSyntax) string {
	var last *chunk.Node
	var walk func(*chunk.Node)
	walk = func(node *chunk.Node) {
		if node == nil {
			return
		}
		if containsType(syn.identifier, node.Type) {
			last = node
		}
		for _, c := range node.Children {
			walk(c)
		}
	}
	walk(n)
	if last == nil {
		return ""
	}
	return last.GetContent(source)
}

func firstIdentifier(n *chunk.Node, source []byte, syn langSyntax) string {
	for _, c := range n.Children {
		if containsType(syn.identifier, c.Type) {
			return c.GetContent(source)
		}
	}
	for _, c := range n.Children {
		if v := firstIdentifier(c, source, syn); v != "" {
			return v
		}
	}
	return ""
}

func extractImports(root *chunk.Node, source []byte, syn langSyntax) []ImportRef {
	var imports []ImportRef
	var walk func(*chunk.Node)
	walk = func(n *chunk.Node) {
		if n == nil {
			return
		}
		if containsType(syn.importDecl, n.Type) {
			ref := ImportRef{Line: int(n.StartPoint.Row) + 1}
			var strs []string
			var names []string
			var collect func(*chunk.Node)
			collect = func(node *chunk.Node) {
				if containsType(syn.stringLit, node.Type) {
					strs = append(strs, strings.Trim(node.GetContent(source), "\"'`"))
				}
				if containsType(syn.identifier, node.Type) {
					names = append(names, node.GetContent(source))
				}
				for _, c := range node.Children {
					collect(c)
				}
			}
			collect(n)
			if len(strs) > 0 {
				ref.Source = strs[0]
			}
			ref.Names = names
			if ref.Source != "" {
				imports = append(imports, ref)
			}
			return // don't descend into an import node's own subtree again
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(root)
	return imports
}

func extractExports(root *chunk.Node, source []byte, language string, syn langSyntax, symbols []*chunk.Symbol) []ExportRef {
	var exports []ExportRef

	switch language {
	case "go":
		for _, s := range symbols {
			if s.Name != "" && unicode.IsUpper([]rune(s.Name)[0]) {
				exports = append(exports, ExportRef{Name: s.Name, Line: s.StartLine})
			}
		}
	case "typescript", "tsx", "javascript", "jsx":
		var walk func(*chunk.Node)
		walk = func(n *chunk.Node) {
			if n == nil {
				return
			}
			if containsType(syn.exportStmt, n.Type) {
				var collect func(*chunk.Node)
				collect = func(node *chunk.Node) {
					if containsType(syn.identifier, node.Type) {
						exports = append(exports, ExportRef{Name: node.GetContent(source), Line: int(n.StartPoint.Row) + 1})
					}
					for _, c := range node.Children {
						collect(c)
					}
				}
				collect(n)
				return
			}
			for _, c := range n.Children {
				walk(c)
			}
		}
		walk(root)
	case "python":
		for _, s := range symbols {
			if s.Name != "" && !strings.HasPrefix(s.Name, "_") {
				exports = append(exports, ExportRef{Name: s.Name, Line: s.StartLine})
			}
		}
	}

	return exports
}

func symbolID(filePath, name string, startLine int) string {
	return fmt.Sprintf("%s:%s:%d", filePath, name, startLine)
}

func graphKind(t chunk.SymbolType) graph.SymbolKind {
	switch t {
	case chunk.SymbolTypeFunction:
		return graph.SymbolKindFunction
	case chunk.SymbolTypeMethod:
		return graph.SymbolKindMethod
	case chunk.SymbolTypeClass, chunk.SymbolTypeInterface, chunk.SymbolTypeType:
		return graph.SymbolKindClass
	case chunk.SymbolTypeVariable:
		return graph.SymbolKindVariable
	case chunk.SymbolTypeConstant:
		return graph.SymbolKindVariable
	default:
		return graph.SymbolKindVariable
	}
}
