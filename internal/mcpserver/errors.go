// Package mcpserver exposes the Consumer and Ingest contracts as MCP
// tools: search, index, handle_file_change, and index_status.
package mcpserver

import (
	"context"
	"errors"
	"fmt"

	pipelineerrors "github.com/codeintel-engine/codeintel/internal/errors"
)

// Custom MCP error codes, following the JSON-RPC reserved-range
// convention of staying below -32000 for application-specific codes.
const (
	ErrCodeIndexNotFound   = -32001
	ErrCodeEmbeddingFailed = -32002
	ErrCodeTimeout         = -32003
	ErrCodeFileNotFound    = -32004
	ErrCodeFileTooLarge    = -32005

	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

var (
	ErrIndexNotFound   = errors.New("index not found")
	ErrToolNotFound    = errors.New("tool not found")
	ErrInvalidParams   = errors.New("invalid parameters")
	ErrResourceNotFound = errors.New("resource not found")
)

// MCPError represents an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts a pipeline or sentinel error into an MCPError,
// mapping a *pipelineerrors.PipelineError's Kind to the closest MCP code.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var pe *pipelineerrors.PipelineError
	if errors.As(err, &pe) {
		return mapPipelineError(pe)
	}

	switch {
	case errors.Is(err, ErrIndexNotFound):
		return &MCPError{Code: ErrCodeIndexNotFound, Message: "Index not found. Run the index tool first."}
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	case errors.Is(err, ErrToolNotFound):
		return &MCPError{Code: ErrCodeMethodNotFound, Message: "Tool not found."}
	case errors.Is(err, ErrInvalidParams):
		return &MCPError{Code: ErrCodeInvalidParams, Message: "Invalid parameters."}
	case errors.Is(err, ErrResourceNotFound):
		return &MCPError{Code: ErrCodeMethodNotFound, Message: "Resource not found."}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
	}
}

func mapPipelineError(pe *pipelineerrors.PipelineError) *MCPError {
	message := pe.Message

	switch pe.Kind {
	case pipelineerrors.KindModelMismatch:
		return &MCPError{Code: ErrCodeIndexNotFound, Message: message}
	case pipelineerrors.KindTimeout:
		return &MCPError{Code: ErrCodeTimeout, Message: message}
	case pipelineerrors.KindProviderUnavailable:
		return &MCPError{Code: ErrCodeEmbeddingFailed, Message: message}
	case pipelineerrors.KindRateLimited:
		return &MCPError{Code: ErrCodeEmbeddingFailed, Message: message}
	case pipelineerrors.KindBadInput:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	case pipelineerrors.KindCancelled:
		return &MCPError{Code: ErrCodeTimeout, Message: message}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	}
}

func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{Code: ErrCodeMethodNotFound, Message: fmt.Sprintf("Tool '%s' not found.", name)}
}

func NewResourceNotFoundError(uri string) *MCPError {
	return &MCPError{Code: ErrCodeMethodNotFound, Message: fmt.Sprintf("Resource '%s' not found.", uri)}
}
