package environment

import "errors"

var (
	// ErrEnvironmentNotFound is returned when an environment ID does not exist.
	ErrEnvironmentNotFound = errors.New("environment: not found")

	// ErrInvalidEnvironment is returned when validation fails.
	ErrInvalidEnvironment = errors.New("environment: invalid")
)
