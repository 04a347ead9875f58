package types

import "github.com/m-mizutani/goerr/v2"

var (
	// ErrCursorConflict is returned by Database.AdvanceCursor when the
	// persisted cursor no longer matches the expected value. It means
	// another run completed in between, so the caller must re-check the gate.
	ErrCursorConflict = goerr.New("change cursor was advanced by another run")

	// ErrRunInFlight is returned when a pipeline run is requested while a
	// previous run is still executing for the same data source.
	ErrRunInFlight = goerr.New("pipeline run already in flight")

	// ErrLogEntryNotFound is returned when closing a pipeline log entry
	// that does not exist or is already closed.
	ErrLogEntryNotFound = goerr.New("open pipeline log entry not found")
)
