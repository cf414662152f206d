package supervisor

import "errors"

var (
	// ErrStreamNotFound is returned by stats queries for an unregistered id.
	ErrStreamNotFound = errors.New("stream not found")

	// ErrShuttingDown is returned for registrations after Shutdown began.
	ErrShuttingDown = errors.New("supervisor is shutting down")
)
