// Package errors defines the error taxonomy for the reconciliation pipeline.
//
// Every failure surfaced by the pipeline is a *ReconcilerError carrying a
// category, a specific code, and optional context. The category determines
// two things consumers care about: whether the job trigger may retry the
// operation (file retrieval is transient, a malformed feed is not) and which
// exit code the CLI reports.
package errors

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorCategory groups errors by their origin in the pipeline.
type ErrorCategory string

const (
	CategoryFile           ErrorCategory = "file"
	CategoryParse          ErrorCategory = "parse"
	CategoryValidation     ErrorCategory = "validation"
	CategoryReconciliation ErrorCategory = "reconciliation"
	CategoryInternal       ErrorCategory = "internal"
)

// ErrorCode identifies a specific failure within a category.
type ErrorCode string

const (
	// File errors (transient, retryable by the job trigger)
	CodeFileNotFound   ErrorCode = "file_not_found"
	CodeFileUnreadable ErrorCode = "file_unreadable"
	CodeRecordNotFound ErrorCode = "record_not_found"

	// Parse errors (permanent, never retried)
	CodeInvalidFormat ErrorCode = "invalid_format"
	CodeMissingColumn ErrorCode = "missing_column"
	CodeInvalidAmount ErrorCode = "invalid_amount"
	CodeInvalidDate   ErrorCode = "invalid_date"
	CodeMissingField  ErrorCode = "missing_field"

	// Validation errors
	CodeInvalidConfig ErrorCode = "invalid_config"
	CodeInvalidData   ErrorCode = "invalid_data"

	// Reconciliation errors
	CodeProcessingError ErrorCode = "processing_error"
	CodeStateConflict   ErrorCode = "state_conflict"

	// Internal errors
	CodeUnexpectedError ErrorCode = "unexpected_error"
)

// Context carries additional structured information about an error.
type Context map[string]interface{}

// ReconcilerError is the error type returned by every pipeline stage.
type ReconcilerError struct {
	Category   ErrorCategory     `json:"category"`
	Code       ErrorCode         `json:"code"`
	Message    string            `json:"message"`
	Suggestion string            `json:"suggestion,omitempty"`
	Context    Context           `json:"context,omitempty"`
	Cause      error             `json:"-"`
	StackTrace errors.StackTrace `json:"-"`
}

// Error implements the error interface.
func (e *ReconcilerError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *ReconcilerError) Unwrap() error {
	return e.Cause
}

// Retryable reports whether the job trigger may retry the failed operation.
// Only file retrieval failures are transient; a malformed feed stays
// malformed no matter how often it is re-read.
func (e *ReconcilerError) Retryable() bool {
	return e.Category == CategoryFile
}

// ExitCode maps the error category to a CLI exit code.
func (e *ReconcilerError) ExitCode() int {
	switch e.Category {
	case CategoryFile:
		return 2
	case CategoryParse, CategoryValidation:
		return 3
	case CategoryReconciliation:
		return 4
	case CategoryInternal:
		return 5
	default:
		return 1
	}
}

// WithContext attaches a context key-value pair to the error.
func (e *ReconcilerError) WithContext(key string, value interface{}) *ReconcilerError {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion attaches a remediation hint to the error.
func (e *ReconcilerError) WithSuggestion(suggestion string) *ReconcilerError {
	e.Suggestion = suggestion
	return e
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// New creates a ReconcilerError with a captured stack trace.
func New(category ErrorCategory, code ErrorCode, message string) *ReconcilerError {
	return &ReconcilerError{
		Category:   category,
		Code:       code,
		Message:    message,
		StackTrace: errors.New("").(stackTracer).StackTrace(),
	}
}

// Wrap wraps an existing error with category and code context.
func Wrap(err error, category ErrorCategory, code ErrorCode, message string) *ReconcilerError {
	if err == nil {
		return nil
	}
	return &ReconcilerError{
		Category:   category,
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: errors.WithStack(err).(stackTracer).StackTrace(),
	}
}

// FileError creates a file-retrieval error. File errors are the retryable
// class: the blob may simply not have arrived yet.
func FileError(code ErrorCode, ref string, err error) *ReconcilerError {
	var message string
	switch code {
	case CodeFileNotFound:
		message = fmt.Sprintf("file not found: %s", ref)
	case CodeFileUnreadable:
		message = fmt.Sprintf("file could not be read: %s", ref)
	case CodeRecordNotFound:
		message = fmt.Sprintf("reconciliation record not found: %s", ref)
	default:
		message = fmt.Sprintf("file error: %s", ref)
	}

	result := New(CategoryFile, code, message)
	if err != nil {
		result = Wrap(err, CategoryFile, code, message)
	}
	return result.WithContext("ref", ref)
}

// ParseError creates a feed parsing error with positional context.
func ParseError(code ErrorCode, feed string, line int, field, value string, err error) *ReconcilerError {
	var message string
	switch code {
	case CodeMissingColumn:
		message = fmt.Sprintf("%s feed: missing required column '%s'", feed, field)
	case CodeInvalidAmount:
		message = fmt.Sprintf("%s feed: invalid amount at line %d: '%s'", feed, line, value)
	case CodeInvalidDate:
		message = fmt.Sprintf("%s feed: invalid date at line %d: '%s'", feed, line, value)
	case CodeMissingField:
		message = fmt.Sprintf("%s feed: missing required field '%s' at line %d", feed, field, line)
	default:
		message = fmt.Sprintf("%s feed: invalid format at line %d", feed, line)
	}

	result := New(CategoryParse, code, message)
	if err != nil {
		result = Wrap(err, CategoryParse, code, message)
	}
	return result.
		WithContext("feed", feed).
		WithContext("line", line).
		WithContext("field", field)
}

// ValidationError creates an error for invalid configuration or data.
func ValidationError(code ErrorCode, field string, value interface{}, err error) *ReconcilerError {
	message := fmt.Sprintf("validation failed for '%s': %v", field, value)
	if code == CodeInvalidConfig {
		message = fmt.Sprintf("invalid configuration for '%s': %v", field, value)
	}

	result := New(CategoryValidation, code, message)
	if err != nil {
		result = Wrap(err, CategoryValidation, code, message)
	}
	return result.WithContext("field", field)
}

// ReconciliationError creates an error for a failed pipeline stage.
func ReconciliationError(code ErrorCode, operation string, err error) *ReconcilerError {
	var message string
	switch code {
	case CodeStateConflict:
		message = fmt.Sprintf("state conflict during %s", operation)
	default:
		message = fmt.Sprintf("processing error during %s", operation)
	}

	result := New(CategoryReconciliation, code, message)
	if err != nil {
		result = Wrap(err, CategoryReconciliation, code, message)
	}
	return result.WithContext("operation", operation)
}

// InternalError creates an error for unexpected internal failures.
func InternalError(operation string, err error) *ReconcilerError {
	message := fmt.Sprintf("unexpected error during %s", operation)

	result := New(CategoryInternal, CodeUnexpectedError, message)
	if err != nil {
		result = Wrap(err, CategoryInternal, CodeUnexpectedError, message)
	}
	return result.WithContext("operation", operation)
}

// AsReconcilerError extracts a ReconcilerError from an error chain.
func AsReconcilerError(err error) (*ReconcilerError, bool) {
	var reconcilerErr *ReconcilerError
	if errors.As(err, &reconcilerErr) {
		return reconcilerErr, true
	}
	return nil, false
}

// IsRetryable reports whether the job trigger may retry after err. Errors
// outside the ReconcilerError taxonomy are treated as permanent.
func IsRetryable(err error) bool {
	if reconcilerErr, ok := AsReconcilerError(err); ok {
		return reconcilerErr.Retryable()
	}
	return false
}

// ExitCode returns the CLI exit code for err, defaulting to 1 for errors
// outside the taxonomy and 0 for nil.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if reconcilerErr, ok := AsReconcilerError(err); ok {
		return reconcilerErr.ExitCode()
	}
	return 1
}
