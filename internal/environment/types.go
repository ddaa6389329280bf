package environment

import (
	"fmt"
	"strings"
	"time"
)

// maxNameLength bounds environment names.
const maxNameLength = 100

// Environment is a place devices are installed in.
type Environment struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Validate checks the required fields. Both name and color are mandatory.
func (e *Environment) Validate() error {
	e.Name = strings.TrimSpace(e.Name)
	e.Color = strings.TrimSpace(e.Color)

	if e.Name == "" || e.Color == "" {
		return fmt.Errorf("%w: name and color are required", ErrInvalidEnvironment)
	}
	if len(e.Name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidEnvironment, maxNameLength)
	}
	return nil
}
