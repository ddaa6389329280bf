package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes.
const (
	// TopicPrefix is the root of every PetCare topic.
	TopicPrefix = "petcare"

	// TopicPrefixDevices is the base for per-device topics.
	TopicPrefixDevices = "petcare/devices"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "petcare/system"
)

// Per-device topic kinds (last path segment).
const (
	KindReadings = "readings"
	KindCommand  = "command"
	KindStatus   = "status"
)

// Topics provides builders for PetCare MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.DeviceCommand("7") // "petcare/devices/7/command"
type Topics struct{}

// DeviceReadings returns the topic a device publishes sensor readings to.
func (Topics) DeviceReadings(deviceID string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixDevices, deviceID, KindReadings)
}

// AllDeviceReadings returns the wildcard matching every device's readings.
func (Topics) AllDeviceReadings() string {
	return TopicPrefixDevices + "/+/" + KindReadings
}

// DeviceCommand returns the topic Core publishes device commands to.
func (Topics) DeviceCommand(deviceID string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixDevices, deviceID, KindCommand)
}

// DeviceStatus returns the topic a device reports its own status on.
func (Topics) DeviceStatus(deviceID string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixDevices, deviceID, KindStatus)
}

// SystemStatus returns the retained Core online/offline topic.
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// ParseDeviceTopic splits petcare/devices/{id}/{kind}.
// ok is false for any other shape.
func ParseDeviceTopic(topic string) (deviceID, kind string, ok bool) {
	rest, found := strings.CutPrefix(topic, TopicPrefixDevices+"/")
	if !found {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
