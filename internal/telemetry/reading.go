package telemetry

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Sentinel errors for telemetry operations.
var (
	// ErrInvalidReading is returned when a reading fails validation.
	ErrInvalidReading = errors.New("telemetry: invalid reading")

	// ErrQueryFailed wraps document store errors.
	ErrQueryFailed = errors.New("telemetry: query failed")
)

// Reading is one sensor measurement as stored in MongoDB.
//
// DeviceID and DeviceEnvironmentID are strings because devices report them
// as text; the relational ids are integers.
type Reading struct {
	ID                  primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SensorName          string             `bson:"sensorName" json:"sensorName"`
	Identifier          string             `bson:"identifier" json:"identifier"`
	Value               float64            `bson:"value" json:"value"`
	Timestamp           time.Time          `bson:"timestamp" json:"timestamp"`
	DeviceID            string             `bson:"deviceId" json:"deviceId"`
	DeviceEnvironmentID string             `bson:"deviceEnvirId,omitempty" json:"deviceEnvirId,omitempty"`
	SensorID            string             `bson:"sensorId,omitempty" json:"sensorId,omitempty"`
	CreatedAt           time.Time          `bson:"createdAt,omitempty" json:"createdAt,omitempty"`
	UpdatedAt           time.Time          `bson:"updatedAt,omitempty" json:"updatedAt,omitempty"`
}

// Normalize trims text fields and fills Timestamp with now when unset.
func (r *Reading) Normalize(now time.Time) {
	r.SensorName = strings.TrimSpace(r.SensorName)
	r.Identifier = strings.TrimSpace(r.Identifier)
	r.DeviceID = strings.TrimSpace(r.DeviceID)
	r.DeviceEnvironmentID = strings.TrimSpace(r.DeviceEnvironmentID)
	r.SensorID = strings.TrimSpace(r.SensorID)
	if r.Timestamp.IsZero() {
		r.Timestamp = now
	}
}

// Validate checks the required fields.
func (r *Reading) Validate() error {
	var missing []string
	if r.SensorName == "" {
		missing = append(missing, "sensorName")
	}
	if r.Identifier == "" {
		missing = append(missing, "identifier")
	}
	if r.DeviceID == "" {
		missing = append(missing, "deviceId")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidReading, strings.Join(missing, ", "))
	}
	return nil
}
