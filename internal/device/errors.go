package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrLinkNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a device ID does not exist.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrInvalidDevice is returned when device validation fails.
	ErrInvalidDevice = errors.New("device: invalid")

	// ErrLinkNotFound is returned when a device-environment link does not exist.
	ErrLinkNotFound = errors.New("device: link not found")

	// ErrInvalidLink is returned when link validation fails.
	ErrInvalidLink = errors.New("device: invalid link")

	// ErrEnvironmentNotFound is returned when a referenced environment does not exist.
	ErrEnvironmentNotFound = errors.New("device: environment not found")

	// ErrInvalidStatus is returned for a status outside the known set.
	ErrInvalidStatus = errors.New("device: invalid status")

	// ErrInvalidInterval is returned when a cleaning interval is not positive.
	ErrInvalidInterval = errors.New("device: invalid interval")

	// ErrInvalidFood is returned when a food amount is out of range.
	ErrInvalidFood = errors.New("device: invalid food amount")

	// ErrUnsupported is returned when an operation does not apply to the
	// link's type (e.g. cleaning a feeder).
	ErrUnsupported = errors.New("device: operation not supported for this type")
)
