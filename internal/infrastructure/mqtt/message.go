package mqtt

import pahomqtt "github.com/eclipse/paho.mqtt.golang"

// Message is an inbound MQTT message as seen by handlers.
type Message struct {
	// Topic is the concrete topic the message was published on.
	Topic   string
	Payload []byte

	// Retained is set when the broker delivered a stored retained message.
	Retained bool

	// Duplicate is set on QoS 1/2 redeliveries.
	Duplicate bool

	QoS byte
}

// MessageHandler is the callback signature for received messages.
//
// Handlers are invoked by the paho library's dispatch goroutine.
// They should not block for extended periods.
//
// Returns:
//   - error: Logged but does not affect message acknowledgment
type MessageHandler func(msg Message) error

func fromPaho(msg pahomqtt.Message) Message {
	return Message{
		Topic:     msg.Topic(),
		Payload:   msg.Payload(),
		Retained:  msg.Retained(),
		Duplicate: msg.Duplicate(),
		QoS:       msg.Qos(),
	}
}
