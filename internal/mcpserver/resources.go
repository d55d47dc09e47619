package mcpserver

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// MaxResourceSize bounds how large a single file resource read returns;
// larger files still search and index fine, they just aren't exposed
// whole through the MCP resource surface.
const MaxResourceSize = 1024 * 1024

// RegisterResources lists every file the content store currently tracks
// and registers each as an MCP resource, so a client can browse/read raw
// file content alongside running searches. Call after NewServer and
// before Serve.
func (s *Server) RegisterResources(ctx context.Context) error {
	const pageSize = 10000

	cursor := ""
	count := 0
	for {
		files, next, err := s.store.ListFiles(ctx, cursor, pageSize)
		if err != nil {
			return fmt.Errorf("list files for resource registration: %w", err)
		}
		for _, f := range files {
			uri := fmt.Sprintf("file://%s", f.Path)
			s.mcp.AddResource(
				&mcp.Resource{
					Name:        filepath.Base(f.Path),
					URI:         uri,
					Description: fmt.Sprintf("%s (%s)", f.Path, humanSize(f.Size)),
					MIMEType:    mimeTypeFor(f.Path, f.Language),
				},
				s.makeFileResourceHandler(f.Path),
			)
			count++
		}
		if next == "" {
			break
		}
		cursor = next
	}

	s.logger.Info("registered MCP resources", slog.Int("count", count))
	return nil
}

func mimeTypeFor(path, language string) string {
	if language != "" {
		if mime := MimeTypeForLanguage(language); mime != "text/plain" {
			return mime
		}
	}
	return MimeTypeForPath(path)
}

func (s *Server) makeFileResourceHandler(path string) mcp.ResourceHandler {
	return func(ctx context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		return s.readFileResource(ctx, path)
	}
}

func (s *Server) readFileResource(ctx context.Context, relativePath string) (*mcp.ReadResourceResult, error) {
	if !isValidResourcePath(relativePath) {
		return nil, NewInvalidParamsError(fmt.Sprintf("invalid path: %s", relativePath))
	}

	file, err := s.store.GetFile(ctx, relativePath)
	if err != nil {
		return nil, MapError(err)
	}
	if file == nil {
		return nil, NewResourceNotFoundError(relativePath)
	}

	fullPath := filepath.Join(s.rootPath, relativePath)
	info, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &MCPError{Code: ErrCodeFileNotFound, Message: fmt.Sprintf("file not found: %s", relativePath)}
		}
		return nil, MapError(err)
	}
	if info.Size() > MaxResourceSize {
		return nil, &MCPError{Code: ErrCodeFileTooLarge, Message: fmt.Sprintf("file too large: %d bytes (max %d)", info.Size(), MaxResourceSize)}
	}

	content, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, MapError(err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      fmt.Sprintf("file://%s", relativePath),
				MIMEType: mimeTypeFor(relativePath, file.Language),
				Text:     string(content),
			},
		},
	}, nil
}

// isValidResourcePath rejects absolute paths, Windows drive paths, and
// any ".." traversal component, so a resource read can never escape the
// project root.
func isValidResourcePath(path string) bool {
	if path == "" || filepath.IsAbs(path) {
		return false
	}
	if len(path) >= 2 && path[1] == ':' {
		return false
	}
	cleaned := filepath.Clean(path)
	if strings.HasPrefix(cleaned, "..") {
		return false
	}
	for _, part := range strings.Split(cleaned, string(filepath.Separator)) {
		if part == ".." {
			return false
		}
	}
	return true
}

func humanSize(bytes int64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)
	switch {
	case bytes >= gb:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(gb))
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
