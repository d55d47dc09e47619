package chunk

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ConfigChunkerOptions configures the config-file chunker behavior
type ConfigChunkerOptions struct {
	MaxChunkTokens int // Maximum tokens per chunk (default: DefaultMaxChunkTokens)
}

// ConfigChunker chunks structured configuration files (YAML, JSON, TOML).
// These files rarely carry a meaningful AST for our purposes, so they are
// indexed as a single whole-file chunk, falling back to line-window
// splitting only when the file is too large to embed in one piece.
type ConfigChunker struct {
	options ConfigChunkerOptions
}

// NewConfigChunker creates a new config chunker with default options
func NewConfigChunker() *ConfigChunker {
	return NewConfigChunkerWithOptions(ConfigChunkerOptions{})
}

// NewConfigChunkerWithOptions creates a new config chunker with custom options
func NewConfigChunkerWithOptions(opts ConfigChunkerOptions) *ConfigChunker {
	if opts.MaxChunkTokens == 0 {
		opts.MaxChunkTokens = DefaultMaxChunkTokens
	}
	return &ConfigChunker{options: opts}
}

// Close releases chunker resources. ConfigChunker is stateless.
func (c *ConfigChunker) Close() {}

// SupportedExtensions returns file extensions this chunker handles
func (c *ConfigChunker) SupportedExtensions() []string {
	return []string{".yaml", ".yml", ".json", ".toml"}
}

// Chunk splits a config file into one or more config chunks
func (c *ConfigChunker) Chunk(ctx context.Context, file *FileInput) ([]*Chunk, error) {
	content := string(file.Content)
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}

	now := time.Now()
	if estimateTokens(content) <= c.options.MaxChunkTokens {
		return []*Chunk{c.buildChunk(file, content, 1, strings.Count(content, "\n")+1, now)}, nil
	}

	return c.chunkByLines(file, content, now), nil
}

func (c *ConfigChunker) buildChunk(file *FileInput, content string, startLine, endLine int, now time.Time) *Chunk {
	return &Chunk{
		ID:          generateChunkID(file.Path, content),
		FilePath:    file.Path,
		Content:     content,
		RawContent:  content,
		ContentType: ContentTypeConfig,
		ChunkType:   ChunkTypeConfig,
		ContentHash: computeContentHash(content),
		Language:    file.Language,
		StartLine:   startLine,
		EndLine:     endLine,
		Metadata:    make(map[string]string),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// chunkByLines splits an oversized config file into fixed-size windows,
// preferring to break on blank lines (top-level key boundaries in YAML/TOML)
// when one falls near the target size.
func (c *ConfigChunker) chunkByLines(file *FileInput, content string, now time.Time) []*Chunk {
	lines := strings.Split(content, "\n")
	linesPerChunk := (c.options.MaxChunkTokens * TokensPerChar) / 40
	if linesPerChunk < 20 {
		linesPerChunk = 20
	}

	var chunks []*Chunk
	for i := 0; i < len(lines); {
		end := i + linesPerChunk
		if end > len(lines) {
			end = len(lines)
		} else {
			// Prefer breaking on a blank line near the target boundary.
			for j := end; j > i && j > end-10; j-- {
				if strings.TrimSpace(lines[j-1]) == "" {
					end = j
					break
				}
			}
		}

		chunkContent := strings.Join(lines[i:end], "\n")
		startLine := i + 1
		endLine := end
		chunk := c.buildChunk(file, chunkContent, startLine, endLine, now)
		chunk.Metadata["part"] = fmt.Sprintf("%d", len(chunks)+1)
		chunks = append(chunks, chunk)

		if end >= len(lines) {
			break
		}
		i = end
	}

	return chunks
}
