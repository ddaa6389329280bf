package realtime

import "time"

// Event is one observed mutation or state change, ready for delivery.
//
// Kind is the outbound message name. DeviceID, EnvironmentID and DeviceType
// are routing keys; they are empty when the kind is not scoped by them.
// Events are never modified after creation.
type Event struct {
	Kind          string
	Collection    string
	DeviceID      string
	EnvironmentID string
	DeviceType    string
	Payload       map[string]any
	Timestamp     time.Time
}

// EventSink receives Events. Broadcaster implements it.
type EventSink interface {
	Publish(e Event)
}
