package storage

import "errors"

var (
	// ErrRunNotFound is returned when a run record is not found
	ErrRunNotFound = errors.New("run not found")

	// ErrRunFinalized is returned when finalizing an already-finalized run
	ErrRunFinalized = errors.New("run already finalized")

	// ErrProfileNotFound is returned when a user profile is not found
	ErrProfileNotFound = errors.New("profile not found")

	// ErrJobNotFound is returned when a job is not found
	ErrJobNotFound = errors.New("job not found")
)
