// Package telemetry stores and queries sensor readings.
//
// Readings are time-series documents in the MongoDB "readings" collection.
// They arrive over MQTT (Ingestor) or the REST API, are inserted into
// MongoDB, and reach WebSocket clients through the realtime change stream
// adapter rather than being broadcast directly.
//
// The package also provides GroupByDevice, the grouping used by the
// realtime initial-data responder.
package telemetry
