package realtime

import (
	"time"

	"github.com/goccy/go-json"
)

// Inbound message names (client to server).
const (
	MsgRequestInitialData   = "request_initial_data"
	MsgSubscribeDevice      = "subscribe_device"
	MsgUnsubscribeDevice    = "unsubscribe_device"
	MsgSubscribeEnvironment = "subscribe_environment"
	MsgSubscribeDeviceType  = "subscribe_device_type"
	MsgSubscribeAll         = "subscribe_all"
	MsgGetRoomsInfo         = "get_rooms_info"
	MsgStartDispenseFood    = "start_dispense_food"
	MsgStopDispenseFood     = "stop_dispense_food"
	MsgControl              = "control"
	MsgTestMessage          = "test_message"
)

// Outbound message names (server to client).
const (
	MsgDeviceStatusChanged   = "device_status_changed"
	MsgCriticalAlert         = "critical_alert"
	MsgSensorData            = "sensor_data"
	MsgIntervalChanged       = "interval_changed"
	MsgCleaningStarted       = "cleaning_started"
	MsgCleaningCompleted     = "cleaning_completed"
	MsgCleaningReminder      = "cleaning_reminder"
	MsgFoodUpdated           = "food_updated"
	MsgLowFoodAlert          = "low_food_alert"
	MsgDatabaseChange        = "database_change"
	MsgNewSensorReading      = "new_sensor_reading"
	MsgDeviceReading         = "device_reading"
	MsgNewDevice             = "new_device"
	MsgDeviceAction          = "device_action"
	MsgRealtimeReading       = "realtime_reading"
	MsgFeederAction          = "feeder_action"
	MsgControlAction         = "control_action"
	MsgInitialData           = "initial_data"
	MsgSubscriptionConfirmed = "subscription_confirmed"
	MsgRoomsInfo             = "rooms_info"
	MsgTestResponse          = "test_response"
	MsgError                 = "error"
)

// Change types carried in the "type" field of database_change.
const (
	ChangeReadingInserted          = "reading_inserted"
	ChangeDeviceEnvironmentUpdated = "device_environment_updated"
	ChangeDeviceInserted           = "device_inserted"
)

// Error types carried in the "type" field of error messages.
const (
	ErrTypeInvalidMessage     = "invalid_message"
	ErrTypeUnknownMessage     = "unknown_message"
	ErrTypeRateLimited        = "rate_limited"
	ErrTypeServiceUnavailable = "service_unavailable"
)

// isoMillis matches the ISO-8601 form browsers produce (2026-03-01T12:00:00.000Z).
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// Message is the JSON envelope on the wire in both directions.
//
//	{"type": "subscribe_device", "id": "1", "payload": {"deviceId": 42}}
type Message struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type outbound struct {
	Type    string         `json:"type"`
	ID      string         `json:"id,omitempty"`
	Payload map[string]any `json:"payload"`
}

// encode builds an outbound frame. The payload is copied and its
// "timestamp" field set to now, whatever the caller put there.
func encode(msgType, id string, payload map[string]any, now time.Time) ([]byte, error) {
	fields := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		fields[k] = v
	}
	fields["timestamp"] = formatTime(now)

	return json.Marshal(outbound{Type: msgType, ID: id, Payload: fields})
}

// sendTo encodes and queues a message for a single connection.
func sendTo(conn Conn, msgType, id string, payload map[string]any, now time.Time) bool {
	data, err := encode(msgType, id, payload, now)
	if err != nil {
		return false
	}
	return conn.Send(data)
}

func errorPayload(errType, message string) map[string]any {
	return map[string]any{
		"type":    errType,
		"message": message,
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(isoMillis)
}
