// Package errors provides structured error handling for txindex.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO errors (disk, lock files, index state)
//   - 4XX: Usage and validation errors
//   - 5XX: Internal errors (store, conversion, query)
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates file, disk and lock I/O errors.
	CategoryIO Category = "IO"
	// CategoryUsage indicates API misuse or invalid input.
	CategoryUsage Category = "USAGE"
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
	ErrCodeConfigInvalid = "ERR_102_CONFIG_INVALID"

	// IO errors (200-299)
	ErrCodeFileNotFound   = "ERR_201_FILE_NOT_FOUND"
	ErrCodeFilePermission = "ERR_202_FILE_PERMISSION"
	ErrCodeDiskFull       = "ERR_203_DISK_FULL"
	ErrCodeIndexOpen      = "ERR_204_INDEX_OPEN_FAILED"
	ErrCodeCorruptIndex   = "ERR_205_CORRUPT_INDEX"
	ErrCodeIndexClosed    = "ERR_206_INDEX_CLOSED"
	ErrCodeLockTimeout    = "ERR_207_LOCK_TIMEOUT"
	ErrCodeLockFile       = "ERR_208_LOCK_FILE"

	// Usage errors (400-499)
	ErrCodeInvalidInput  = "ERR_401_INVALID_INPUT"
	ErrCodeInvalidQuery  = "ERR_402_INVALID_QUERY"
	ErrCodeNoTransaction = "ERR_403_NO_TRANSACTION"
	ErrCodeNestedTx      = "ERR_404_NESTED_TRANSACTION"

	// Internal errors (500-599)
	ErrCodeInternal         = "ERR_501_INTERNAL"
	ErrCodeQueryFailed      = "ERR_503_QUERY_FAILED"
	ErrCodeConversionFailed = "ERR_504_CONVERSION_FAILED"
	ErrCodeStoreFailed      = "ERR_505_STORE_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract numeric portion (e.g., "102" from "ERR_102_CONFIG_INVALID")
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '4':
		return CategoryUsage
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeDiskFull:
		return SeverityFatal
	case ErrCodeNoTransaction, ErrCodeNestedTx:
		return SeverityWarning
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
// A timed out lock or a store that raced with Close can succeed on a later attempt.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeLockTimeout, ErrCodeIndexClosed:
		return true
	default:
		return false
	}
}
