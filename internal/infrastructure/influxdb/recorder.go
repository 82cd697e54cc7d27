package influxdb

import "github.com/Distributed-IoT-Software-Arch-Course/go-mqtt-playground/internal/descriptor"

// Measurement names.
const (
	MeasurementBreach = "threshold_breach"
	MeasurementAction = "controller_action"
	MeasurementRearm  = "rearm"
)

// RecordBreach writes a temperature sample that exceeded the limit.
func (c *Client) RecordBreach(deviceID string, value, limit float64) {
	c.writePoint(MeasurementBreach,
		map[string]string{"device_id": deviceID},
		map[string]any{"value": value, "limit": limit},
	)
}

// RecordAction writes an action the controller published.
func (c *Client) RecordAction(deviceID string, action descriptor.ActionDescriptor, reason string) {
	c.writePoint(MeasurementAction,
		map[string]string{
			"device_id":    deviceID,
			"action_type":  action.ActionType,
			"action_value": action.ActionValue,
			"reason":       reason,
		},
		map[string]any{"count": 1},
	)
}

// RecordRearm writes one re-arm lifecycle event (scheduled, fired, failed...).
func (c *Client) RecordRearm(deviceID, outcome string) {
	c.writePoint(MeasurementRearm,
		map[string]string{"device_id": deviceID, "outcome": outcome},
		map[string]any{"count": 1},
	)
}
