package engine

import "errors"

var (
	// ErrInvalidConfig wraps every configuration problem reported by Start.
	// No device is opened and no goroutine is started when it is returned.
	ErrInvalidConfig = errors.New("engine: invalid configuration")

	// ErrDevice wraps capture and render device failures. A device failure
	// while running stops the session; the cause is available from Session.Err.
	ErrDevice = errors.New("engine: device failure")

	// ErrAlreadyRunning is returned by Start on a running session.
	ErrAlreadyRunning = errors.New("engine: session already running")

	// ErrReleased is returned by every operation except Stop and Release
	// once the session has been released.
	ErrReleased = errors.New("engine: session released")
)
