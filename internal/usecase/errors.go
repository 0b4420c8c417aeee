package usecase

import "errors"

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrNotFound              = errors.New("resource not found")
	ErrDependencyUnavailable = errors.New("dependency unavailable")

	// ErrEndpointGone marks a push endpoint the delivery service reports
	// as permanently invalid. The subscription must be pruned.
	ErrEndpointGone = errors.New("push endpoint permanently gone")
)
