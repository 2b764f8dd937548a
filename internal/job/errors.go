package job

import "errors"

// Precondition failures. The texts are shown to the user as is.
var (
	ErrNoAssets   = errors.New("Please select at least one image file.")
	ErrNoCatalog  = errors.New("Please select a store.")
	ErrNoTemplate = errors.New("Please select an example product.")
)

var (
	// ErrNotConfirmed is returned when the user declines the submission.
	ErrNotConfirmed = errors.New("submission not confirmed")
	// ErrJobActive is returned when a job is already being polled.
	ErrJobActive = errors.New("a job is already running")
	// ErrCancelUnavailable is returned once the job reached a terminal status.
	ErrCancelUnavailable = errors.New("job already finished, nothing to cancel")
	// ErrNotStarted is returned by Wait before any job was watched.
	ErrNotStarted = errors.New("no job has been started")
	// ErrInvalidRequest wraps struct validation failures of the assembled request.
	ErrInvalidRequest = errors.New("invalid job request")
)
