package control

import "errors"

var (
	// ErrMissingDependency is returned by NewLoop when a collaborator is nil.
	ErrMissingDependency = errors.New("control: missing dependency")

	// ErrAlreadyRunning is returned when Run is called twice.
	ErrAlreadyRunning = errors.New("control: loop already running")
)
