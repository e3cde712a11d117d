// Package errors defines the typed application errors used by the
// reconciliation core.
//
// Errors carry a category, a machine-readable code, optional context
// key-value pairs and a human-facing suggestion. Parse-level problems are
// deliberately NOT modeled here: a malformed transaction inside a statement
// becomes a warning on the parse result, never an error. This package covers
// the failures that stop an operation: unreadable files, bad configuration,
// gateway failures and reconciliation action failures.
package errors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Category groups errors by subsystem.
type Category string

const (
	CategoryFile           Category = "file"
	CategoryStatement      Category = "statement"
	CategoryConfiguration  Category = "configuration"
	CategoryGateway        Category = "gateway"
	CategoryReconciliation Category = "reconciliation"
	CategoryInternal       Category = "internal"
)

// Code identifies a specific error condition within a category.
type Code string

const (
	CodeFileNotFound   Code = "file_not_found"
	CodeFilePermission Code = "file_permission"
	CodeFileUnreadable Code = "file_unreadable"

	CodeInvalidStatement Code = "invalid_statement"

	CodeInvalidConfig Code = "invalid_config"
	CodeMissingConfig Code = "missing_config"

	CodeStoreUnavailable Code = "store_unavailable"
	CodeStoreConflict    Code = "store_conflict"
	CodeStoreFailure     Code = "store_failure"

	CodeActionFailed  Code = "action_failed"
	CodeInvalidAction Code = "invalid_action"

	CodeUnexpectedError Code = "unexpected_error"
)

// Context carries additional structured information about an error.
type Context map[string]interface{}

// ReconcilerError is the error type surfaced by the reconciliation core.
type ReconcilerError struct {
	Category   Category          `json:"category"`
	Code       Code              `json:"code"`
	Message    string            `json:"message"`
	Suggestion string            `json:"suggestion,omitempty"`
	Context    Context           `json:"context,omitempty"`
	Cause      error             `json:"-"`
	StackTrace errors.StackTrace `json:"-"`
}

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

// ExitCode maps the error category to a CLI exit code.
func (e *ReconcilerError) ExitCode() int {
	switch e.Category {
	case CategoryFile:
		return 2
	case CategoryStatement:
		return 3
	case CategoryConfiguration:
		return 4
	case CategoryReconciliation, CategoryInternal:
		return 5
	case CategoryGateway:
		return 6
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

// WithSuggestion attaches a human-facing remediation hint.
func (e *ReconcilerError) WithSuggestion(suggestion string) *ReconcilerError {
	e.Suggestion = suggestion
	return e
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// New creates a ReconcilerError with a captured stack trace.
func New(category Category, code Code, message string) *ReconcilerError {
	return &ReconcilerError{
		Category:   category,
		Code:       code,
		Message:    message,
		StackTrace: errors.New("").(stackTracer).StackTrace(),
	}
}

// Wrap wraps an existing error, keeping it available via Unwrap.
func Wrap(err error, category Category, code Code, message string) *ReconcilerError {
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

// FileError creates a file access error for the given path.
func FileError(code Code, path string, err error) *ReconcilerError {
	var message, suggestion string
	switch code {
	case CodeFileNotFound:
		message = fmt.Sprintf("statement file not found: %s", path)
		suggestion = "check that the file path is correct and the file exists"
	case CodeFilePermission:
		message = fmt.Sprintf("permission denied reading file: %s", path)
		suggestion = "check file permissions and ensure you have read access"
	default:
		message = fmt.Sprintf("cannot read file: %s", path)
		suggestion = "verify the file is accessible and try again"
	}

	result := wrapOrNew(err, CategoryFile, code, message)
	return result.WithSuggestion(suggestion).WithContext("file_path", path)
}

// ConfigurationError creates a configuration error for a specific setting.
func ConfigurationError(code Code, setting string, value interface{}, err error) *ReconcilerError {
	var message, suggestion string
	switch code {
	case CodeMissingConfig:
		message = fmt.Sprintf("missing required configuration: %s", setting)
		suggestion = "provide this setting via flag, environment variable or config file"
	default:
		message = fmt.Sprintf("invalid configuration for %q: %v", setting, value)
		suggestion = "check the documented valid values for this setting"
	}

	result := wrapOrNew(err, CategoryConfiguration, code, message)
	return result.WithSuggestion(suggestion).
		WithContext("setting", setting).
		WithContext("value", value)
}

// GatewayError creates an error for a failed data-access call.
func GatewayError(code Code, table string, err error) *ReconcilerError {
	var message, suggestion string
	switch code {
	case CodeStoreUnavailable:
		message = fmt.Sprintf("ledger store unavailable for table %q", table)
		suggestion = "the reconciliation can proceed in degraded mode without suggestions"
	case CodeStoreConflict:
		message = fmt.Sprintf("conflicting write on table %q", table)
		suggestion = "the record already exists; re-import to rehydrate the prior resolution"
	default:
		message = fmt.Sprintf("ledger store operation failed on table %q", table)
		suggestion = "check the store connection and retry"
	}

	result := wrapOrNew(err, CategoryGateway, code, message)
	return result.WithSuggestion(suggestion).WithContext("table", table)
}

// ActionError creates an error for a failed terminal reconciliation action.
func ActionError(action, fitID string, err error) *ReconcilerError {
	message := fmt.Sprintf("reconciliation action %q failed for transaction %s", action, fitID)
	result := wrapOrNew(err, CategoryReconciliation, CodeActionFailed, message)
	return result.
		WithSuggestion("nothing was changed; the action can be retried safely").
		WithContext("action", action).
		WithContext("fit_id", fitID)
}

// InternalError creates an error for unexpected conditions.
func InternalError(operation string, err error) *ReconcilerError {
	message := fmt.Sprintf("unexpected error during %s", operation)
	result := wrapOrNew(err, CategoryInternal, CodeUnexpectedError, message)
	return result.WithContext("operation", operation)
}

func wrapOrNew(err error, category Category, code Code, message string) *ReconcilerError {
	if err != nil {
		return Wrap(err, category, code, message)
	}
	return New(category, code, message)
}

// IsReconcilerError reports whether err is a ReconcilerError.
func IsReconcilerError(err error) bool {
	_, ok := err.(*ReconcilerError)
	return ok
}

// AsReconcilerError extracts a ReconcilerError from an error chain.
func AsReconcilerError(err error) (*ReconcilerError, bool) {
	var appErr *ReconcilerError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
