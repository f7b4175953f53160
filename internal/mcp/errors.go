// Package mcp implements the Model Context Protocol server for
// packmcp. It exposes the pattern index to AI clients as tools.
package mcp

import (
	"context"
	"errors"
	"fmt"

	pkgerr "github.com/packmcp/packmcp/internal/errors"
)

// MCP error codes.
const (
	// ErrCodeIndexNotFound indicates no index exists yet.
	ErrCodeIndexNotFound = -32001

	// ErrCodeEmbeddingFailed indicates embedding generation failed.
	ErrCodeEmbeddingFailed = -32002

	// ErrCodeTimeout indicates the request timed out.
	ErrCodeTimeout = -32003

	// Standard JSON-RPC error codes.
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// MCPError represents an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts internal errors to MCP errors.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var pe *pkgerr.PackError
	if errors.As(err, &pe) {
		return mapPackError(pe)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
	}
}

// NewInvalidParamsError creates an error for invalid parameters.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

func mapPackError(pe *pkgerr.PackError) *MCPError {
	switch pe.Code {
	case pkgerr.ErrCodeInvalidQuery:
		return &MCPError{Code: ErrCodeInvalidParams, Message: pe.Message}
	case pkgerr.ErrCodeEmbedding:
		return &MCPError{Code: ErrCodeEmbeddingFailed, Message: pe.Message}
	case pkgerr.ErrCodeEmbeddingTimeout:
		return &MCPError{Code: ErrCodeTimeout, Message: pe.Message}
	case pkgerr.ErrCodeStoreUnavailable, pkgerr.ErrCodeStoreCorrupt:
		return &MCPError{
			Code:    ErrCodeIndexNotFound,
			Message: "Index unavailable. Run 'packmcp index' first.",
		}
	default:
		switch pe.Category {
		case pkgerr.CategoryConfig, pkgerr.CategoryContent:
			return &MCPError{Code: ErrCodeInvalidParams, Message: pe.Message}
		default:
			return &MCPError{Code: ErrCodeInternalError, Message: pe.Message}
		}
	}
}
