// Package mqtt provides MQTT client connectivity for the smart object,
// the controller and the observer.
//
// This package manages:
//   - Connection to the broker, with bounded exponential-backoff retries on
//     the initial connect and optional auto-reconnect afterwards
//   - Message publishing with QoS guarantees behind an optional circuit breaker
//   - Topic subscriptions with wildcard support, restored on reconnect
//   - Presence on clients/<clientId>/status with Last Will and Testament
//   - The device topic scheme and a wildcard matcher
//
// # Architecture
//
// Devices and controllers never talk directly; every interaction goes
// through the broker:
//
//	Smart object ↔ MQTT Broker ↔ Controller
//	                    ↕
//	                Observer
//
// # Security Considerations
//
//   - Enable TLS (cfg.Broker.TLS=true) outside a lab network
//   - Anonymous access is only for local development
//   - Actions are not authenticated beyond broker ACLs
//
// # Usage
//
//	client, err := mqtt.ConnectContext(ctx, cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.DeviceTelemetryAll("device001"), 0,
//	    func(msg mqtt.Message) error {
//	        log.Printf("Received: %s = %s", msg.Topic, msg.Payload)
//	        return nil
//	    })
//
//	topic := mqtt.Topics{}.DeviceAction("device001", mqtt.KindSwitch)
//	client.Publish(topic, []byte(`{"actionType":"SWITCH","actionValue":"OFF"}`), 1, false)
package mqtt
