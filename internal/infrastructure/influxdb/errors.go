package influxdb

import "errors"

// Sentinel errors returned by the time-series mirror. Asynchronous write
// failures never surface here; they reach the callback set with SetOnError
// wrapped in ErrWriteFailed.
var (
	// ErrDisabled is returned by Connect when influxdb.enabled is false.
	// Callers treat it as "run without a mirror", not as a failure.
	ErrDisabled = errors.New("influxdb: disabled in configuration")

	// ErrConnectionFailed wraps ping and readiness failures during Connect.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrNotConnected is reported by HealthCheck after Close.
	ErrNotConnected = errors.New("influxdb: not connected")

	ErrWriteFailed = errors.New("influxdb: write failed")
)
