// Package apperr holds the sentinel errors shared across beamline packages.
package apperr

import "errors"

var (
	ErrNotFound = errors.New("not found")

	// ErrLocked reports that another process still holds a file.
	ErrLocked = errors.New("file locked by another process")

	// ErrRetryExhausted wraps the last lock failure once the retry budget is spent.
	ErrRetryExhausted = errors.New("retry budget exhausted")

	// ErrMalformed marks input that cannot be parsed into the expected shape.
	ErrMalformed = errors.New("malformed input")

	// ErrNoFolders is returned when no configured folder can be watched.
	ErrNoFolders = errors.New("no watchable folders")

	ErrOutsideRoots = errors.New("path outside watched folders")

	// ErrUnsupported marks a file the pipeline has no transform for.
	ErrUnsupported = errors.New("unsupported file type")
)

// ErrAlreadyRunning is returned when another daemon holds the instance lock.
var ErrAlreadyRunning = errors.New("another instance is already running")
