package errors

import (
	"errors"
	"fmt"
)

// PackError is the structured error type for packmcp.
// It provides rich context for error handling, logging, and user presentation.
type PackError struct {
	// Code is the unique error code (e.g., "ERR_301_PATH_TRAVERSAL").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Content, Embedding, Internal).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *PackError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *PackError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with PackError.
func (e *PackError) Is(target error) bool {
	if t, ok := target.(*PackError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *PackError) WithDetail(key, value string) *PackError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new PackError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *PackError {
	return &PackError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a PackError from an existing error.
// The error's message becomes the PackError message.
func Wrap(code string, err error) *PackError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// PathTraversal creates a path-safety violation error for the given path.
func PathTraversal(path string) *PackError {
	return New(ErrCodePathTraversal,
		fmt.Sprintf("path escapes content root: %s", path), nil).
		WithDetail("path", path)
}

// ParseError creates a content parsing error.
func ParseError(path string, cause error) *PackError {
	return New(ErrCodeParse,
		fmt.Sprintf("failed to parse %s: %v", path, cause), cause).
		WithDetail("path", path)
}

// EmbeddingError creates an embedding backend error.
func EmbeddingError(message string, cause error) *PackError {
	return New(ErrCodeEmbedding, message, cause)
}

// StoreUnavailable creates a fatal index-store error.
func StoreUnavailable(message string, cause error) *PackError {
	return New(ErrCodeStoreUnavailable, message, cause)
}

// IsRetryable checks if an error is retryable.
// Returns true if the error is a PackError with Retryable flag set.
func IsRetryable(err error) bool {
	var pe *PackError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors abort the whole build or query rather than a single file.
func IsFatal(err error) bool {
	var pe *PackError
	if errors.As(err, &pe) {
		return pe.Severity == SeverityFatal
	}
	return false
}

// HasCode reports whether err carries the given error code anywhere
// in its chain.
func HasCode(err error, code string) bool {
	var pe *PackError
	if errors.As(err, &pe) {
		return pe.Code == code
	}
	return false
}

// GetCode extracts the error code from a PackError.
// Returns empty string if not a PackError.
func GetCode(err error) string {
	var pe *PackError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}
