// Package errors provides structured error types for gridbench.
// All errors include a category, code, message, and retryable flag so the
// workload runner can decide between dropping, recording, and aborting.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by system component.
type ErrorCategory string

const (
	ErrCategoryValidation ErrorCategory = "VALIDATION"
	ErrCategoryIndexing   ErrorCategory = "INDEXING"
	ErrCategoryStore      ErrorCategory = "STORE"
	ErrCategoryWorkload   ErrorCategory = "WORKLOAD"
	ErrCategoryReport     ErrorCategory = "REPORT"
	ErrCategoryInternal   ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Validation codes
	CodeInvalidParameter = "INVALID_PARAMETER"

	// Indexing codes
	CodeOutOfBounds = "OUT_OF_BOUNDS"

	// Store codes
	CodeConnectivity    = "CONNECTIVITY"
	CodeQueryTimeout    = "QUERY_TIMEOUT"
	CodeNotFound        = "NOT_FOUND"
	CodeStatementFailed = "STATEMENT_FAILED"

	// Workload codes
	CodeInvalidTransition = "INVALID_TRANSITION"

	// Report codes
	CodeExportFailed = "EXPORT_FAILED"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// Sentinels for errors.Is matching. Matching compares category and code only.
var (
	ErrInvalidParameter  = New(ErrCategoryValidation, CodeInvalidParameter, "invalid parameter")
	ErrOutOfBounds       = New(ErrCategoryIndexing, CodeOutOfBounds, "point out of bounds")
	ErrStoreConnectivity = New(ErrCategoryStore, CodeConnectivity, "store connectivity lost")
	ErrQueryTimeout      = New(ErrCategoryStore, CodeQueryTimeout, "query timed out")
	ErrNotFound          = New(ErrCategoryStore, CodeNotFound, "record not found")
	ErrStatementFailed   = New(ErrCategoryStore, CodeStatementFailed, "statement failed")
	ErrExportFailed      = New(ErrCategoryReport, CodeExportFailed, "report export failed")
)

// GridError is the structured error type used throughout the system.
type GridError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *GridError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *GridError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *GridError) Is(target error) bool {
	var t *GridError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new GridError.
func New(category ErrorCategory, code, message string) *GridError {
	return &GridError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new GridError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *GridError {
	return &GridError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *GridError) WithDetails(details map[string]interface{}) *GridError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var ge *GridError
	if errors.As(err, &ge) {
		return ge.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a GridError.
func GetCategory(err error) ErrorCategory {
	var ge *GridError
	if errors.As(err, &ge) {
		return ge.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a GridError.
func GetCode(err error) string {
	var ge *GridError
	if errors.As(err, &ge) {
		return ge.Code
	}
	return ""
}

// IsFatal reports whether err must abort the remaining phases of a run.
func IsFatal(err error) bool {
	return errors.Is(err, ErrStoreConnectivity)
}

// isRetryable reports which codes a caller may record and move past.
// Only query timeouts qualify; a timed-out trial becomes a failed sample.
func isRetryable(category ErrorCategory, code string) bool {
	return category == ErrCategoryStore && code == CodeQueryTimeout
}

// Convenience constructors for common errors.

func InvalidParameter(format string, args ...interface{}) *GridError {
	return New(ErrCategoryValidation, CodeInvalidParameter, fmt.Sprintf(format, args...))
}

func InvalidParameterCause(message string, cause error) *GridError {
	return Wrap(ErrCategoryValidation, CodeInvalidParameter, message, cause)
}

func OutOfBounds(format string, args ...interface{}) *GridError {
	return New(ErrCategoryIndexing, CodeOutOfBounds, fmt.Sprintf(format, args...))
}

func StoreConnectivity(message string, cause error) *GridError {
	return Wrap(ErrCategoryStore, CodeConnectivity, message, cause)
}

func QueryTimeout(message string, cause error) *GridError {
	return Wrap(ErrCategoryStore, CodeQueryTimeout, message, cause)
}

func NotFound(format string, args ...interface{}) *GridError {
	return New(ErrCategoryStore, CodeNotFound, fmt.Sprintf(format, args...))
}

func StatementFailed(message string, cause error) *GridError {
	return Wrap(ErrCategoryStore, CodeStatementFailed, message, cause)
}

func InvalidTransition(from, to string) *GridError {
	return New(ErrCategoryWorkload, CodeInvalidTransition, fmt.Sprintf("cannot move from %s to %s", from, to))
}

func ExportFailed(message string, cause error) *GridError {
	return Wrap(ErrCategoryReport, CodeExportFailed, message, cause)
}

func NewInternalError(message string, cause error) *GridError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
