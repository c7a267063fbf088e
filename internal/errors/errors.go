package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents stable error codes for the caller-side surfaces
// (config, storage, jobs, ingest, CLI). The compaction engine itself never
// returns an error; it fails open.
type ErrorCode string

const (
	// InputTooLarge indicates the input exceeds limits.maxInputBytes
	InputTooLarge ErrorCode = "INPUT_TOO_LARGE"
	// UnsupportedInput indicates binary or unreadable input
	UnsupportedInput ErrorCode = "UNSUPPORTED_INPUT"
	// Timeout indicates a compaction job exceeded limits.timeoutMs
	Timeout ErrorCode = "TIMEOUT"
	// StorageError indicates the cache or job database failed
	StorageError ErrorCode = "STORAGE_ERROR"
	// JobNotFound indicates an unknown job ID
	JobNotFound ErrorCode = "JOB_NOT_FOUND"
	// ConfigInvalid indicates the config file failed validation
	ConfigInvalid ErrorCode = "CONFIG_INVALID"
	// InternalError indicates unexpected error
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// FixActionType represents the type of fix action
type FixActionType string

const (
	// RunCommand suggests running a command
	RunCommand FixActionType = "run-command"
	// EditConfig suggests changing a config key
	EditConfig FixActionType = "edit-config"
)

// FixAction represents a suggested fix for an error
type FixAction struct {
	Type        FixActionType `json:"type"`
	Command     string        `json:"command,omitempty"`
	Key         string        `json:"key,omitempty"`
	Description string        `json:"description,omitempty"`
}

// CompactionError represents a codeshrink error with code, message, and suggestions
type CompactionError struct {
	Code           ErrorCode   `json:"code"`
	Message        string      `json:"message"`
	Details        interface{} `json:"details,omitempty"`
	SuggestedFixes []FixAction `json:"suggestedFixes,omitempty"`
	cause          error       // Underlying error (not exported to JSON)
}

// New creates a CompactionError with the default fixes for code.
func New(code ErrorCode, message string, cause error) *CompactionError {
	return &CompactionError{
		Code:           code,
		Message:        message,
		SuggestedFixes: GetSuggestedFixes(code),
		cause:          cause,
	}
}

// Error implements the error interface
func (e *CompactionError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *CompactionError) Unwrap() error {
	return e.cause
}

// WithDetails adds details to the error
func (e *CompactionError) WithDetails(details interface{}) *CompactionError {
	e.Details = details
	return e
}

// CodeOf returns the code of the first CompactionError in err's chain,
// or InternalError when there is none.
func CodeOf(err error) ErrorCode {
	var ce *CompactionError
	if stderrors.As(err, &ce) {
		return ce.Code
	}
	return InternalError
}

// Is reports whether err carries code.
func Is(err error, code ErrorCode) bool {
	var ce *CompactionError
	return stderrors.As(err, &ce) && ce.Code == code
}

// ErrorActions maps error codes to suggested fix actions
var ErrorActions = map[ErrorCode][]FixAction{
	InputTooLarge: {
		{
			Type:        EditConfig,
			Key:         "limits.maxInputBytes",
			Description: "Raise the input ceiling or split the file",
		},
	},
	Timeout: {
		{
			Type:        EditConfig,
			Key:         "limits.timeoutMs",
			Description: "Raise the per-job timeout",
		},
		{
			Type:        EditConfig,
			Key:         "compaction.detectStrategy",
			Description: "Use the indexed detector",
		},
	},
	StorageError: {
		{
			Type:        RunCommand,
			Command:     "codeshrink cache clear",
			Description: "Reset the artifact cache",
		},
	},
	JobNotFound: {
		{
			Type:        RunCommand,
			Command:     "codeshrink jobs list",
			Description: "List known jobs",
		},
	},
	ConfigInvalid: {
		{
			Type:        RunCommand,
			Command:     "codeshrink config init --force",
			Description: "Rewrite the default config",
		},
	},
}

// GetSuggestedFixes returns suggested fixes for an error code
func GetSuggestedFixes(code ErrorCode) []FixAction {
	if fixes, ok := ErrorActions[code]; ok {
		return fixes
	}
	return nil
}
