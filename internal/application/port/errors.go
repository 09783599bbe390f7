package port

import "errors"

var (
	// ErrNotFound is returned when a requested record does not exist
	ErrNotFound = errors.New("not found")

	// ErrConcurrentUpdate is returned when a conditional write lost a race
	ErrConcurrentUpdate = errors.New("concurrent update")
)
