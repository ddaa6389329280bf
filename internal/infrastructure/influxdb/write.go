package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementReadings = "device_readings"
	MeasurementFood     = "food_levels"
	MeasurementEvents   = "device_events"
)

// WriteReading mirrors one sensor reading.
//
// Parameters:
//   - deviceID: Registered device id
//   - sensorName: Sensor name as reported by the device (e.g. "peso", "nivel_agua")
//   - value: Numeric reading
//   - ts: Reading timestamp; zero means now
func (c *Client) WriteReading(deviceID, sensorName string, value float64, ts time.Time) {
	c.writePoint(readingPoint(deviceID, sensorName, value, ts))
}

// WriteFoodLevel records grams remaining on a device-environment link.
func (c *Client) WriteFoodLevel(deviceEnvironmentID, alias string, grams float64) {
	c.writePoint(foodPoint(deviceEnvironmentID, alias, grams, time.Now()))
}

// WriteDeviceEvent records a lifecycle event (status change, cleaning,
// alert) with its severity.
func (c *Client) WriteDeviceEvent(deviceEnvironmentID, deviceType, event, severity string) {
	c.writePoint(eventPoint(deviceEnvironmentID, deviceType, event, severity, time.Now()))
}

func readingPoint(deviceID, sensorName string, value float64, ts time.Time) *write.Point {
	if ts.IsZero() {
		ts = time.Now()
	}
	return write.NewPoint(
		MeasurementReadings,
		map[string]string{
			"device_id": deviceID,
			"sensor":    sensorName,
		},
		map[string]interface{}{
			"value": value,
		},
		ts,
	)
}

func foodPoint(deviceEnvironmentID, alias string, grams float64, ts time.Time) *write.Point {
	return write.NewPoint(
		MeasurementFood,
		map[string]string{
			"device_environment_id": deviceEnvironmentID,
			"alias":                 alias,
		},
		map[string]interface{}{
			"grams": grams,
		},
		ts,
	)
}

func eventPoint(deviceEnvironmentID, deviceType, event, severity string, ts time.Time) *write.Point {
	tags := map[string]string{
		"device_environment_id": deviceEnvironmentID,
		"type":                  deviceType,
		"event":                 event,
	}
	if severity != "" {
		tags["severity"] = severity
	}
	return write.NewPoint(
		MeasurementEvents,
		tags,
		map[string]interface{}{
			"count": 1,
		},
		ts,
	)
}
