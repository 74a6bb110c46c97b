// Package errors provides structured error handling for hybridrag.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Index and chunk store errors
//   - 3XX: External service errors (embedding, vector index, reranker)
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIndex indicates missing or unreadable persisted indices.
	CategoryIndex Category = "INDEX"
	// CategoryService indicates an external service failure.
	CategoryService Category = "SERVICE"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
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

	// Index errors (200-299)
	ErrCodeIndexNotLoaded    = "ERR_201_INDEX_NOT_LOADED"
	ErrCodeChunkStoreInvalid = "ERR_202_CHUNK_STORE_INVALID"
	ErrCodeDimensionMismatch = "ERR_203_DIMENSION_MISMATCH"

	// Service errors (300-399)
	ErrCodeServiceUnavailable  = "ERR_301_SERVICE_UNAVAILABLE"
	ErrCodeEmbeddingFailed     = "ERR_302_EMBEDDING_FAILED"
	ErrCodeRerankerUnavailable = "ERR_303_RERANKER_UNAVAILABLE"

	// Validation errors (400-499)
	ErrCodeInvalidQuery  = "ERR_401_INVALID_QUERY"
	ErrCodeQueryEmpty    = "ERR_402_QUERY_EMPTY"
	ErrCodeInvalidFilter = "ERR_403_INVALID_FILTER"
	ErrCodeInvalidInput  = "ERR_404_INVALID_INPUT"

	// Internal errors (500-599)
	ErrCodeInternal     = "ERR_501_INTERNAL"
	ErrCodeSearchFailed = "ERR_502_SEARCH_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// "ERR_301_..." -> '3'
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIndex
	case '3':
		return CategoryService
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeIndexNotLoaded, ErrCodeChunkStoreInvalid:
		return SeverityFatal
	case ErrCodeRerankerUnavailable:
		return SeverityWarning
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}
	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeServiceUnavailable:
		return true
	default:
		return false
	}
}
