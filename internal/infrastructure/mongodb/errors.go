package mongodb

import "errors"

// Sentinel errors for MongoDB operations.
var (
	// ErrConnectionFailed indicates the initial connection attempt failed.
	ErrConnectionFailed = errors.New("mongodb: connection failed")

	// ErrNotConnected indicates the client has been closed.
	ErrNotConnected = errors.New("mongodb: not connected")

	// ErrNotReady indicates the server did not answer a ping before the deadline.
	ErrNotReady = errors.New("mongodb: server not ready")

	// ErrWatchFailed indicates a change stream could not be opened.
	ErrWatchFailed = errors.New("mongodb: watch failed")
)
