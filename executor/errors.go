package executor

import "errors"

// Errors returned by the executor.
var (
	// ErrNotInitialized is returned by Process before Init succeeds.
	ErrNotInitialized = errors.New("executor: not initialized")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("executor: closed")

	// ErrEmptyImage is returned for images with a zero dimension.
	ErrEmptyImage = errors.New("executor: empty image")

	// ErrDimensionMismatch is returned when Mix inputs differ in size.
	ErrDimensionMismatch = errors.New("executor: mix inputs differ in size")

	// ErrTileTooSmall is returned when the device cannot hold a single
	// padded output row.
	ErrTileTooSmall = errors.New("executor: buffer limit too small to tile")
)
