package errors

import (
	"fmt"
)

// DirwatchError is the structured error type for dirwatch.
// It carries enough context to log an error and to explain it to the user.
type DirwatchError struct {
	// Code is the unique error code (e.g., "ERR_201_PATH_NOT_FOUND").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Validation, Internal).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *DirwatchError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *DirwatchError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a DirwatchError with the same code.
func (e *DirwatchError) Is(target error) bool {
	if t, ok := target.(*DirwatchError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *DirwatchError) WithDetail(key, value string) *DirwatchError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
// Returns the error for method chaining.
func (e *DirwatchError) WithSuggestion(suggestion string) *DirwatchError {
	e.Suggestion = suggestion
	return e
}

// New creates a new DirwatchError with the given code and message.
// Category and severity are derived from the code.
func New(code string, message string, cause error) *DirwatchError {
	return &DirwatchError{
		Code:     code,
		Message:  message,
		Category: categoryFromCode(code),
		Severity: severityFromCode(code),
		Cause:    cause,
	}
}

// Wrap creates a DirwatchError from an existing error.
// The error's message becomes the DirwatchError message.
func Wrap(code string, err error) *DirwatchError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *DirwatchError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *DirwatchError {
	return New(ErrCodeInvalidInput, message, cause)
}

// GetCode extracts the error code from a DirwatchError.
// Returns empty string if not a DirwatchError.
func GetCode(err error) string {
	if de, ok := err.(*DirwatchError); ok {
		return de.Code
	}
	return ""
}
