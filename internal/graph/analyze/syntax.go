package analyze

// langSyntax names the tree-sitter node types this package treats as
// import statements, call expressions, member/selector access, assignment
// statements, and return statements for one language, plus the node types
// treated as string literals and bare identifiers when extracting names
// from those constructs. Mirrors the per-language node-type tables in
// internal/chunk/languages.go, extended for the constructs that package
// doesn't need (imports, calls, data flow).
type langSyntax struct {
	importDecl   []string
	callExpr     []string
	selectorExpr []string
	assignStmt   []string
	returnStmt   []string
	stringLit    []string
	identifier   []string
	exportStmt   []string
}

var syntaxByLanguage = map[string]langSyntax{
	"go": {
		importDecl:   []string{"import_declaration"},
		callExpr:     []string{"call_expression"},
		selectorExpr: []string{"selector_expression"},
		assignStmt:   []string{"assignment_statement", "short_var_declaration"},
		returnStmt:   []string{"return_statement"},
		stringLit:    []string{"interpreted_string_literal", "raw_string_literal"},
		identifier:   []string{"identifier", "field_identifier", "package_identifier", "type_identifier"},
	},
	"typescript": {
		importDecl:   []string{"import_statement"},
		callExpr:     []string{"call_expression"},
		selectorExpr: []string{"member_expression"},
		assignStmt:   []string{"assignment_expression"},
		returnStmt:   []string{"return_statement"},
		stringLit:    []string{"string", "string_fragment"},
		identifier:   []string{"identifier", "property_identifier", "type_identifier"},
		exportStmt:   []string{"export_statement"},
	},
	"javascript": {
		importDecl:   []string{"import_statement"},
		callExpr:     []string{"call_expression"},
		selectorExpr: []string{"member_expression"},
		assignStmt:   []string{"assignment_expression"},
		returnStmt:   []string{"return_statement"},
		stringLit:    []string{"string", "string_fragment"},
		identifier:   []string{"identifier", "property_identifier"},
		exportStmt:   []string{"export_statement"},
	},
	"python": {
		importDecl:   []string{"import_statement", "import_from_statement"},
		callExpr:     []string{"call"},
		selectorExpr: []string{"attribute"},
		assignStmt:   []string{"assignment"},
		returnStmt:   []string{"return_statement"},
		stringLit:    []string{"string"},
		identifier:   []string{"identifier"},
	},
}

func init() {
	// tsx and jsx share their parent language's grammar node names.
	syntaxByLanguage["tsx"] = syntaxByLanguage["typescript"]
	syntaxByLanguage["jsx"] = syntaxByLanguage["javascript"]
}

func syntaxFor(language string) (langSyntax, bool) {
	s, ok := syntaxByLanguage[language]
	return s, ok
}

func containsType(types []string, t string) bool {
	for _, want := range types {
		if want == t {
			return true
		}
	}
	return false
}
