// Package api implements the HTTP REST API for PetCare Core and mounts the
// realtime WebSocket hub.
//
// This package provides:
//   - REST endpoints for environments, devices and device-environment links
//   - Link mutations (status, interval, food, cleaning) that fan out to
//     WebSocket clients through device.Service
//   - Telemetry queries and ingestion backed by MongoDB
//   - Health, Prometheus and runtime endpoints
//   - Middleware stack (request ID, logging, metrics, recovery, CORS)
//
// # Architecture
//
// Relational data lives in SQLite; readings live in MongoDB. Writes to
// MongoDB reach WebSocket clients through change streams, so the API never
// broadcasts reading inserts itself. Device actions are relayed to clients
// and, when MQTT is connected, to the device.
//
// # Graceful Degradation
//
// Reading endpoints, the WebSocket route and /realtime/restart answer 503 when their
// dependency is not wired. /health reports "degraded" when any registered
// check fails.
//
// There is no authentication.
package api
