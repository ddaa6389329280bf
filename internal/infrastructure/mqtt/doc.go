// Package mqtt provides MQTT connectivity for PetCare Core.
//
// Devices (feeders, water dispensers, litter boxes) publish sensor readings
// to the broker and receive dispense commands from it:
//
//	device  → petcare/devices/{id}/readings  → Core (telemetry ingestor)
//	Core    → petcare/devices/{id}/command   → device
//	Core    → petcare/system/status          (retained, LWT on crash)
//
// The client reconnects automatically and restores its subscriptions after
// every reconnect.
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllDeviceReadings(), 1, ingestor.HandleMessage)
//	err = client.PublishJSON(mqtt.Topics{}.DeviceCommand("7"), cmd)
package mqtt
