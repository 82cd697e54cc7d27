package mqtt

import (
	"fmt"
	"strings"
)

// Maximum payload size for MQTT messages (1MB).
const maxPayloadSize = 1 << 20

// Publish sends a message to the specified MQTT topic.
//
// Parameters:
//   - topic: The concrete topic to publish to (wildcards are rejected)
//   - payload: The message payload (typically JSON, max 1MB)
//   - qos: Quality of Service level (0, 1, or 2)
//   - retained: Whether the broker should retain the message for new subscribers
//
// Retained Messages:
//   - Use for identity and presence (device/<id>/info, clients/<id>/status)
//   - Don't use for telemetry, events or actions
//
// When the publish breaker is open the call fails fast with ErrCircuitOpen.
//
// Example:
//
//	topic := mqtt.Topics{}.DeviceAction("device001", "switch")
//	err := client.Publish(topic, payload, 1, false)
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" || strings.ContainsAny(topic, "+#") {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	return c.guard(func() error {
		if !c.IsConnected() {
			return ErrNotConnected
		}

		token := c.client.Publish(topic, qos, retained, payload)
		if !token.WaitTimeout(defaultPublishTimeout) {
			return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
		}
		if err := token.Error(); err != nil {
			return fmt.Errorf("%w: %w", ErrPublishFailed, err)
		}
		return nil
	})
}

// PublishRetained publishes a retained message with the configured default QoS.
func (c *Client) PublishRetained(topic string, payload []byte) error {
	return c.Publish(topic, payload, byte(c.cfg.QoS), true) //nolint:gosec // QoS validated by config
}
