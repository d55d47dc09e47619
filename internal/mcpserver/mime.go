package mcpserver

import (
	"path/filepath"
	"strings"
)

// mimeTypesByExt maps file extensions to MIME types.
var mimeTypesByExt = map[string]string{
	".go":  "text/x-go",
	".mod": "text/x-go.mod",
	".sum": "text/x-go.sum",

	".ts":  "text/typescript",
	".tsx": "text/typescript",
	".js":  "text/javascript",
	".jsx": "text/javascript",
	".mjs": "text/javascript",

	".py": "text/x-python",

	".html": "text/html",
	".htm":  "text/html",
	".css":  "text/css",
	".scss": "text/x-scss",

	".json": "application/json",
	".yaml": "text/x-yaml",
	".yml":  "text/x-yaml",
	".xml":  "text/xml",
	".toml": "text/x-toml",

	".md":  "text/markdown",
	".mdx": "text/markdown",
	".txt": "text/plain",
	".rst": "text/x-rst",

	".env":  "text/plain",
	".ini":  "text/plain",
	".conf": "text/plain",

	".sh":   "text/x-sh",
	".bash": "text/x-sh",
	".zsh":  "text/x-sh",

	".sql": "text/x-sql",

	".c":   "text/x-c",
	".cpp": "text/x-c++",
	".h":   "text/x-c",
	".hpp": "text/x-c++",

	".java": "text/x-java",
	".kt":   "text/x-kotlin",
	".rs":   "text/x-rust",
	".rb":   "text/x-ruby",
	".php":  "text/x-php",
}

// mimeTypesByLanguage maps the chunk.Language values the parser's tree-sitter
// registry can produce (see internal/chunk's language registry) to MIME
// types, for resources where a language is already known and a path
// extension lookup would just be redoing that work.
var mimeTypesByLanguage = map[string]string{
	"go":         "text/x-go",
	"typescript": "text/typescript",
	"javascript": "text/javascript",
	"python":     "text/x-python",
	"rust":       "text/x-rust",
	"java":       "text/x-java",
	"c":          "text/x-c",
	"cpp":        "text/x-c++",
	"markdown":   "text/markdown",
}

// specialFilenames maps specific filenames (no useful extension) to MIME types.
var specialFilenames = map[string]string{
	"Dockerfile":     "text/x-dockerfile",
	"Makefile":       "text/x-makefile",
	"Jenkinsfile":    "text/x-groovy",
	"Vagrantfile":    "text/x-ruby",
	"Gemfile":        "text/x-ruby",
	"Rakefile":       "text/x-ruby",
	"CMakeLists.txt": "text/x-cmake",
}

// MimeTypeForLanguage returns the MIME type for a chunk.Language value,
// falling back to text/plain for anything the registry doesn't name.
func MimeTypeForLanguage(language string) string {
	if mime, ok := mimeTypesByLanguage[strings.ToLower(language)]; ok {
		return mime
	}
	return "text/plain"
}

// MimeTypeForPath returns the MIME type for a file path: special filenames
// first, then extension, falling back to text/plain.
func MimeTypeForPath(path string) string {
	base := filepath.Base(path)
	if mime, ok := specialFilenames[base]; ok {
		return mime
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext != "" {
		if mime, ok := mimeTypesByExt[ext]; ok {
			return mime
		}
	}

	return "text/plain"
}
