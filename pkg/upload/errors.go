package upload

import "errors"

var (
	// ErrQueueFull is returned when Submit cannot enqueue without blocking.
	ErrQueueFull = errors.New("upload queue full")

	// ErrWorkerStopped is returned for jobs still queued when the worker exits.
	ErrWorkerStopped = errors.New("upload worker stopped")

	// ErrNotAuthenticated is returned by Drive when no saved token exists.
	ErrNotAuthenticated = errors.New("not authenticated with Google Drive")
)
