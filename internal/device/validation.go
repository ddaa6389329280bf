package device

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Validation constants.
const (
	maxNameLength       = 100
	maxIdentifierLength = 64
)

// Pre-computed validation sets.
var (
	validTypes    map[Type]struct{}
	validStatuses map[Status]struct{}
)

func init() {
	validTypes = make(map[Type]struct{}, len(AllTypes()))
	for _, t := range AllTypes() {
		validTypes[t] = struct{}{}
	}

	validStatuses = make(map[Status]struct{}, len(AllStatuses()))
	for _, s := range AllStatuses() {
		validStatuses[s] = struct{}{}
	}
}

// ValidateDevice checks a device before it is stored.
func ValidateDevice(d *Device) error {
	if d == nil {
		return fmt.Errorf("%w: device is nil", ErrInvalidDevice)
	}
	d.Name = strings.TrimSpace(d.Name)
	if err := validateName(d.Name); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDevice, err)
	}
	return nil
}

// ValidateLink checks a link before it is stored. An empty status
// defaults to abastecido and an empty identifier is generated.
func ValidateLink(l *Link) error {
	if l == nil {
		return fmt.Errorf("%w: link is nil", ErrInvalidLink)
	}

	l.Alias = strings.TrimSpace(l.Alias)
	if err := validateName(l.Alias); err != nil {
		return fmt.Errorf("%w: alias: %w", ErrInvalidLink, err)
	}
	if err := ValidateType(l.Type); err != nil {
		return err
	}

	if l.Status == "" {
		l.Status = StatusSupplied
	}
	if err := ValidateStatus(l.Status); err != nil {
		return err
	}

	if l.DeviceID <= 0 || l.EnvironmentID <= 0 {
		return fmt.Errorf("%w: deviceId and environmentId are required", ErrInvalidLink)
	}

	if l.Interval != nil {
		if l.Type != TypeLitterBox {
			return fmt.Errorf("%w: only arenero has a cleaning interval", ErrUnsupported)
		}
		if err := ValidateInterval(*l.Interval); err != nil {
			return err
		}
	}
	if l.FoodGrams != nil {
		if l.Type != TypeFeeder {
			return fmt.Errorf("%w: only comedero tracks food", ErrUnsupported)
		}
		if *l.FoodGrams < 0 {
			return fmt.Errorf("%w: must not be negative", ErrInvalidFood)
		}
	}

	l.Identifier = strings.TrimSpace(l.Identifier)
	if l.Identifier == "" {
		l.Identifier = GenerateIdentifier()
	}
	if len(l.Identifier) > maxIdentifierLength {
		return fmt.Errorf("%w: identifier exceeds %d characters", ErrInvalidLink, maxIdentifierLength)
	}
	return nil
}

// ValidateStatus checks that s is one of the known statuses.
func ValidateStatus(s Status) error {
	if _, ok := validStatuses[s]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	return nil
}

// ValidateType checks that t is one of the known device types.
func ValidateType(t Type) error {
	if _, ok := validTypes[t]; !ok {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidLink, t)
	}
	return nil
}

// ValidateInterval checks a cleaning interval in minutes.
func ValidateInterval(minutes int) error {
	if minutes <= 0 {
		return fmt.Errorf("%w: must be a positive number of minutes", ErrInvalidInterval)
	}
	return nil
}

func validateName(name string) error {
	if name == "" {
		return errors.New("name is required")
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("name exceeds %d characters", maxNameLength)
	}
	return nil
}

// GenerateIdentifier creates the identifier a link's readings carry.
func GenerateIdentifier() string {
	return uuid.New().String()
}
