// Package influxdb mirrors PetCare telemetry into InfluxDB.
//
// MongoDB stays the system of record for readings; InfluxDB receives a
// numeric copy so dashboards can chart food levels, water levels and litter
// box usage over long periods without scanning the document store.
//
// Measurements written:
//   - device_readings: one point per sensor reading (tags device_id, sensor)
//   - food_levels: grams remaining per device-environment link
//   - device_events: status changes, cleaning cycles and alerts
//
// Usage:
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // mirroring off
//	}
//	defer client.Close()
//
//	client.WriteReading("7", "peso", 182.5, ts)
//
// Writes are non-blocking and batched; failures surface through SetOnError.
package influxdb
