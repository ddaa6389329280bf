// Package device manages PetCare devices and their installation in
// environments.
//
// A Device is the physical unit (an ESP32 board with sensors). A Link
// places a device in an environment under an alias and a type:
//
//   - comedero: feeder, tracks grams of food
//   - bebedero: water dispenser
//   - arenero: litter box, has a cleaning interval and cleaning cycle
//
// # Architecture
//
//	┌───────────────────────────────────────────────────────────────┐
//	│                           Service                             │
//	│  UpdateStatus · UpdateInterval · UpdateFood · cleaning cycle  │
//	└───────┬──────────────────────┬──────────────────────┬─────────┘
//	        │                      │                      │
//	        ▼                      ▼                      ▼
//	┌───────────────┐     ┌─────────────────┐    ┌─────────────────┐
//	│  Repository   │     │    Announcer    │    │ EventRecorder   │
//	│  (SQLite)     │     │ (WebSocket hub) │    │   (InfluxDB)    │
//	└───────────────┘     └─────────────────┘    └─────────────────┘
//
// Every mutation is persisted first. Announcements and recorded events
// follow and never fail the mutation.
//
// RegisterDevice also mirrors the device into the MongoDB devices
// collection, whose change stream emits device_inserted and new_device.
//
// # Thread Safety
//
// Service serialises mutations; all methods are safe for concurrent use.
package device
