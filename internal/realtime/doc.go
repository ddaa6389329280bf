// Package realtime fans PetCare state changes out to WebSocket clients.
//
// It is made of four cooperating parts:
//
//   - Registry: live connections and their topic memberships
//     (device:<id>, environment:<id>, type:<deviceType>, all).
//   - Adapter: watches the MongoDB change streams on readings,
//     device_environments and devices and turns each change into Events.
//   - Broadcaster: decides which connections receive an Event and delivers it.
//   - Responder: answers request_initial_data with a bounded snapshot of
//     recent readings, to the requesting connection only.
//
// The Hub owns the WebSocket transport and wires the parts together.
//
// # Delivery Rules
//
// Status, alert, interval, cleaning, food and new-device events go to every
// registered connection regardless of topic membership. Sensor readings go
// to every connection and again to the device:<id> topic, so subscribers of
// that topic receive two copies. Device, feeder and control actions go to
// the device, type and all topics and again to every connection. Only
// realtime_reading is purely topic-scoped.
//
// Topic joins are not authorised here. Any connection may join any topic.
//
// # Thread Safety
//
// Registry, Broadcaster, Adapter and Hub are safe for concurrent use.
package realtime
