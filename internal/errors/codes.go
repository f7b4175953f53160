// Package errors provides structured error handling for packmcp.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO errors (file, disk, index storage)
//   - 3XX: Content errors (path safety, parsing)
//   - 4XX: Embedding and query errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates file, disk, and index storage errors.
	CategoryIO Category = "IO"
	// CategoryContent indicates content safety and parsing errors.
	CategoryContent Category = "CONTENT"
	// CategoryEmbedding indicates embedding backend and query errors.
	CategoryEmbedding Category = "EMBEDDING"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// IO errors (200-299)
	ErrCodeFileNotFound     = "ERR_201_FILE_NOT_FOUND"
	ErrCodeFilePermission   = "ERR_202_FILE_PERMISSION"
	ErrCodeStoreUnavailable = "ERR_205_STORE_UNAVAILABLE"
	ErrCodeStoreCorrupt     = "ERR_206_STORE_CORRUPT"
	ErrCodeBuildLocked      = "ERR_207_BUILD_LOCKED"

	// Content errors (300-399)
	ErrCodePathTraversal = "ERR_301_PATH_TRAVERSAL"
	ErrCodeSymlink       = "ERR_302_SYMLINK_REJECTED"
	ErrCodeParse         = "ERR_310_PARSE"
	ErrCodeDuplicateKey  = "ERR_311_DUPLICATE_IDENTITY_KEY"

	// Embedding and query errors (400-499)
	ErrCodeEmbedding         = "ERR_401_EMBEDDING"
	ErrCodeEmbeddingTimeout  = "ERR_402_EMBEDDING_TIMEOUT"
	ErrCodeDimensionMismatch = "ERR_403_DIMENSION_MISMATCH"
	ErrCodeInvalidQuery      = "ERR_404_INVALID_QUERY"

	// Internal errors (500-599)
	ErrCodeInternal = "ERR_501_INTERNAL"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryContent
	case '4':
		return CategoryEmbedding
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeStoreUnavailable, ErrCodeStoreCorrupt:
		return SeverityFatal
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
// Only transient embedding backend failures qualify; path and parse
// errors are deterministic and retrying them cannot help.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeEmbedding, ErrCodeEmbeddingTimeout:
		return true
	}
	return false
}
