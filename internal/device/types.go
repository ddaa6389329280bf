package device

import (
	"strconv"
	"time"

	"github.com/nerrad567/petcare-core/internal/realtime"
)

// Type classifies a device as installed in an environment.
type Type string

// Device types.
const (
	TypeFeeder    Type = realtime.TypeFeeder
	TypeWaterer   Type = realtime.TypeWaterer
	TypeLitterBox Type = realtime.TypeLitterBox
)

// AllTypes returns every known device type.
func AllTypes() []Type {
	return []Type{TypeFeeder, TypeWaterer, TypeLitterBox}
}

// Status is the supply state of a link.
type Status string

// Statuses.
const (
	StatusNoFood   Status = realtime.StatusNoFood
	StatusNoLitter Status = realtime.StatusNoLitter
	StatusNoWater  Status = realtime.StatusNoWater
	StatusSupplied Status = realtime.StatusSupplied
	StatusFull     Status = realtime.StatusFull
	StatusDirty    Status = realtime.StatusDirty
)

// AllStatuses returns every known status.
func AllStatuses() []Status {
	return []Status{StatusNoFood, StatusNoLitter, StatusNoWater, StatusSupplied, StatusFull, StatusDirty}
}

// Device is a physical PetCare unit.
type Device struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	EnvironmentID *int64    `json:"environmentId,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Link installs a device in an environment.
type Link struct {
	ID            int64    `json:"id"`
	Alias         string   `json:"alias"`
	Type          Type     `json:"type"`
	Status        Status   `json:"status"`
	Interval      *int     `json:"intervalo"`
	FoodGrams     *float64 `json:"comida"`
	Identifier    string   `json:"identifier"`
	DeviceID      int64    `json:"deviceId"`
	EnvironmentID int64    `json:"environmentId"`

	CleaningStartedAt *time.Time `json:"cleaningStartedAt,omitempty"`
	LastCleanedAt     *time.Time `json:"lastCleanedAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DeviceLink is the identity carried by realtime announcements.
func (l *Link) DeviceLink() realtime.DeviceLink {
	return realtime.DeviceLink{
		ID:            l.ID,
		EnvironmentID: l.EnvironmentID,
		DeviceID:      l.DeviceID,
		Alias:         l.Alias,
		Type:          string(l.Type),
	}
}

// RecordID is the link id as used for time-series tags.
func (l *Link) RecordID() string {
	return strconv.FormatInt(l.ID, 10)
}

// Clone returns a deep copy.
func (l *Link) Clone() *Link {
	c := *l
	if l.Interval != nil {
		v := *l.Interval
		c.Interval = &v
	}
	if l.FoodGrams != nil {
		v := *l.FoodGrams
		c.FoodGrams = &v
	}
	if l.CleaningStartedAt != nil {
		v := *l.CleaningStartedAt
		c.CleaningStartedAt = &v
	}
	if l.LastCleanedAt != nil {
		v := *l.LastCleanedAt
		c.LastCleanedAt = &v
	}
	return &c
}
