package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes.
//
// Device topics use the scheme device/{deviceId}/{category}[/{kind}]:
//
//	device/device001/info                  retained identity
//	device/device001/telemetry/temperature sensor samples
//	device/device001/telemetry/switch      actuator self-reports
//	device/device001/event                 OVER_HEATING and friends
//	device/device001/action/switch         commands to the actuator
const (
	// TopicPrefixDevice is the base for all device topics.
	TopicPrefixDevice = "device"

	// TopicPrefixClients is the base for client presence topics.
	TopicPrefixClients = "clients"
)

// Telemetry and action kinds used as the last topic level.
const (
	KindTemperature = "temperature"
	KindSwitch      = "switch"
)

// Topics provides builders for MQTT topics.
// Using these helpers ensures consistent topic naming across the binaries.
//
//	topics := mqtt.Topics{}
//	topics.DeviceTelemetry("device001", mqtt.KindTemperature)
//	// Returns: "device/device001/telemetry/temperature"
type Topics struct{}

// DeviceInfo returns the retained identity topic of a device.
//
// Example: device/device001/info
func (Topics) DeviceInfo(deviceID string) string {
	return fmt.Sprintf("%s/%s/info", TopicPrefixDevice, deviceID)
}

// DeviceTelemetry returns a telemetry topic of a device.
//
// Example: device/device001/telemetry/temperature
func (Topics) DeviceTelemetry(deviceID, kind string) string {
	return fmt.Sprintf("%s/%s/telemetry/%s", TopicPrefixDevice, deviceID, kind)
}

// DeviceEvent returns the event topic of a device.
//
// Example: device/device001/event
func (Topics) DeviceEvent(deviceID string) string {
	return fmt.Sprintf("%s/%s/event", TopicPrefixDevice, deviceID)
}

// DeviceAction returns an action (command) topic of a device.
//
// Example: device/device001/action/switch
func (Topics) DeviceAction(deviceID, kind string) string {
	return fmt.Sprintf("%s/%s/action/%s", TopicPrefixDevice, deviceID, kind)
}

// ClientStatus returns the presence topic carrying online/offline and the Last Will.
//
// Example: clients/controller-1a2b3c4d/status
func (Topics) ClientStatus(clientID string) string {
	return fmt.Sprintf("%s/%s/status", TopicPrefixClients, clientID)
}

// =============================================================================
// Subscription filters
// =============================================================================

// DeviceTelemetryAll matches every telemetry topic of one device.
//
// Example: device/device001/telemetry/#
func (Topics) DeviceTelemetryAll(deviceID string) string {
	return fmt.Sprintf("%s/%s/telemetry/#", TopicPrefixDevice, deviceID)
}

// DeviceEventAll matches the event topic of one device and anything below it.
//
// Example: device/device001/event/#
func (Topics) DeviceEventAll(deviceID string) string {
	return fmt.Sprintf("%s/%s/event/#", TopicPrefixDevice, deviceID)
}

// AllDeviceInfo matches the identity topic of every device.
func (Topics) AllDeviceInfo() string {
	return TopicPrefixDevice + "/+/info"
}

// AllDeviceTelemetry matches every telemetry topic of every device.
func (Topics) AllDeviceTelemetry() string {
	return TopicPrefixDevice + "/+/telemetry/#"
}

// DeviceIDFromTopic extracts the device id from a device/{id}/... topic.
func DeviceIDFromTopic(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 || parts[0] != TopicPrefixDevice || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// TopicMatches reports whether a concrete topic matches a subscription filter.
//
// "+" matches exactly one level (which may be empty). "#" matches any number
// of trailing levels, including none, so "device/1/event/#" also matches
// "device/1/event". Topics starting with "$" are not matched by a leading
// wildcard.
func TopicMatches(filter, topic string) bool {
	if filter == "" || topic == "" {
		return false
	}
	if strings.HasPrefix(topic, "$") && (strings.HasPrefix(filter, "+") || strings.HasPrefix(filter, "#")) {
		return false
	}

	f := strings.Split(filter, "/")
	t := strings.Split(topic, "/")

	for i, level := range f {
		if level == "#" {
			return true
		}
		if i >= len(t) {
			return false
		}
		if level != "+" && level != t[i] {
			return false
		}
	}

	return len(f) == len(t)
}

// ValidFilter reports whether filter is a well-formed subscription filter:
// non-empty, "+" only as a whole level, "#" only as the whole last level.
func ValidFilter(filter string) bool {
	if filter == "" {
		return false
	}

	levels := strings.Split(filter, "/")
	for i, level := range levels {
		if strings.Contains(level, "#") && (level != "#" || i != len(levels)-1) {
			return false
		}
		if strings.Contains(level, "+") && level != "+" {
			return false
		}
	}
	return true
}
