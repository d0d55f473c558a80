// Package errors provides structured error handling for dirwatch.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration and argument errors
//   - 2XX: Filesystem errors (paths, permissions, locks)
//   - 4XX: Validation errors
//   - 5XX: Watch and callback errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration or argument errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates filesystem errors.
	CategoryIO Category = "IO"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates watch, callback and unexpected errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates the process cannot start or continue.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates an operation failed but watching continues.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound  = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid   = "ERR_102_CONFIG_INVALID"
	ErrCodeMissingArgument = "ERR_103_MISSING_ARGUMENT"

	// IO errors (200-299)
	ErrCodePathNotFound   = "ERR_201_PATH_NOT_FOUND"
	ErrCodePathPermission = "ERR_202_PATH_PERMISSION"
	ErrCodeNotADirectory  = "ERR_203_NOT_A_DIRECTORY"
	ErrCodeLockHeld       = "ERR_204_LOCK_HELD"

	// Validation errors (400-499)
	ErrCodeInvalidFilter = "ERR_401_INVALID_FILTER"
	ErrCodeInvalidInput  = "ERR_402_INVALID_INPUT"

	// Internal errors (500-599)
	ErrCodeInternal       = "ERR_501_INTERNAL"
	ErrCodeWatchFailed    = "ERR_502_WATCH_FAILED"
	ErrCodeCallbackFailed = "ERR_503_CALLBACK_FAILED"
	ErrCodeEmptyWatchSet  = "ERR_504_EMPTY_WATCH_SET"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract numeric portion (e.g., "101" from "ERR_101_CONFIG_NOT_FOUND")
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeWatchFailed:
		return SeverityWarning
	case ErrCodeCallbackFailed:
		return SeverityError
	}

	// Everything else is only raised while starting up
	return SeverityFatal
}
