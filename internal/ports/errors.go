package ports

import (
	"errors"
	"fmt"
)

// Standard application-level errors.
// Adapters and the history engine wrap their failures with these errors; callers test with errors.Is.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Feed Specific Errors
	ErrFeedUnavailable  = errors.New("bar feed is unavailable")
	ErrConnectionFailed = errors.New("failed to connect to the bar feed")
	ErrRateLimited      = errors.New("API rate limit exceeded")

	// History Storage Errors
	ErrInvalidArgument = errors.New("invalid argument")
	ErrFormat          = errors.New("invalid or unsupported history format")
	ErrIntegrity       = errors.New("history data integrity violation")
	ErrInvalidBar      = errors.New("invalid bar")
	ErrOrdering        = errors.New("bar out of order")
	ErrIO              = errors.New("history file I/O error")
	ErrIllegalState    = errors.New("illegal state")

	// ErrFileTooSmall marks a history file shorter than its header. It is recoverable: the owner may
	// recreate the file on the next write.
	ErrFileTooSmall = fmt.Errorf("filesize.insufficient: %w", ErrFormat)

	// Database Specific Errors
	ErrDBConnection = errors.New("database connection error")
	ErrQueryFailed  = errors.New("database query failed")
)
