package errors

import (
	stderrors "errors"
	"fmt"
)

// RAGError is the structured error type for hybridrag.
// It carries enough context for callers to decide between rejecting a
// request, degrading the result, or aborting startup.
type RAGError struct {
	// Code is the unique error code (e.g., "ERR_401_INVALID_QUERY").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Index, Service, ...).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *RAGError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *RAGError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
func (e *RAGError) Is(target error) bool {
	if t, ok := target.(*RAGError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *RAGError) WithDetail(key, value string) *RAGError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *RAGError) WithSuggestion(suggestion string) *RAGError {
	e.Suggestion = suggestion
	return e
}

// New creates a new RAGError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *RAGError {
	return &RAGError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a RAGError from an existing error.
func Wrap(code string, err error) *RAGError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ValidationError creates an error for rejected query or filter input.
func ValidationError(message string, cause error) *RAGError {
	return New(ErrCodeInvalidQuery, message, cause)
}

// ServiceUnavailable creates an error for an unreachable external service.
func ServiceUnavailable(service string, cause error) *RAGError {
	return New(ErrCodeServiceUnavailable, service+" unavailable", cause).
		WithDetail("service", service)
}

// RerankerUnavailable creates an error for a failed reranker call.
func RerankerUnavailable(message string, cause error) *RAGError {
	return New(ErrCodeRerankerUnavailable, message, cause)
}

// IndexNotLoaded creates a fatal error for a missing persisted index.
func IndexNotLoaded(what, path string, cause error) *RAGError {
	return New(ErrCodeIndexNotLoaded, fmt.Sprintf("%s not loaded from %s", what, path), cause).
		WithDetail("path", path).
		WithSuggestion("run the indexing job before starting the engine")
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *RAGError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *RAGError {
	return New(ErrCodeInternal, message, cause)
}

// as finds the first RAGError in err's chain.
func as(err error) (*RAGError, bool) {
	var re *RAGError
	if stderrors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if re, ok := as(err); ok {
		return re.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	if re, ok := as(err); ok {
		return re.Severity == SeverityFatal
	}
	return false
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	return GetCategory(err) == CategoryValidation
}

// IsServiceUnavailable reports whether err comes from an unreachable service.
func IsServiceUnavailable(err error) bool {
	if re, ok := as(err); ok {
		return re.Code == ErrCodeServiceUnavailable || re.Code == ErrCodeEmbeddingFailed
	}
	return false
}

// GetCode extracts the error code from a RAGError.
// Returns empty string if not a RAGError.
func GetCode(err error) string {
	if re, ok := as(err); ok {
		return re.Code
	}
	return ""
}

// GetCategory extracts the category from a RAGError.
func GetCategory(err error) Category {
	if re, ok := as(err); ok {
		return re.Category
	}
	return ""
}
