package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Distributed-IoT-Software-Arch-Course/go-mqtt-playground/internal/descriptor"
	"github.com/Distributed-IoT-Software-Arch-Course/go-mqtt-playground/internal/device"
	"github.com/Distributed-IoT-Software-Arch-Course/go-mqtt-playground/internal/infrastructure/config"
	"github.com/Distributed-IoT-Software-Arch-Course/go-mqtt-playground/internal/infrastructure/mqtt"
)

// MQTTClient is the subset of the MQTT client the agent needs.
// *mqtt.Client satisfies it; tests use an in-memory mock.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	PublishRetained(topic string, payload []byte) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Sensor produces samples. *device.TemperatureSensor satisfies it.
type Sensor interface {
	Measure() float64
}

// Logger defines the logging interface used by the agent.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options holds everything needed to build an Agent.
type Options struct {
	Device config.DeviceConfig
	Agent  config.AgentConfig

	// QoS is used for info, telemetry and events; ActionQoS for the action
	// subscription.
	QoS       byte
	ActionQoS byte

	MQTTClient MQTTClient

	// Sensor defaults to a TemperatureSensor over Agent.Sensor bounds.
	Sensor Sensor

	Logger  Logger
	Metrics *Metrics

	// Now defaults to time.Now.
	Now func() time.Time
}

// Agent is one smart object. Create it with New and drive it with Run.
//
// Thread Safety: Run and HandleMessage may be called concurrently.
type Agent struct {
	id         string
	descriptor descriptor.DeviceDescriptor
	cfg        config.AgentConfig
	qos        byte
	actionQoS  byte

	mqtt    MQTTClient
	logger  Logger
	metrics *Metrics
	now     func() time.Time

	topics       mqtt.Topics
	actionFilter string

	// mu guards sensor, actuator and the counters below for the whole of
	// each sample-check-publish and mutate-publish sequence.
	mu         sync.Mutex
	sensor     Sensor
	actuator   *device.SwitchActuator
	lastSample float64
	ticks      int
	applied    int
	ignored    int
}

// Snapshot is a point-in-time copy of the agent state.
type Snapshot struct {
	DeviceID        string  `json:"device_id"`
	Switch          string  `json:"switch"`
	LastTemperature float64 `json:"last_temperature"`
	Ticks           int     `json:"ticks"`
	MessageLimit    int     `json:"message_limit"`
	ActionsApplied  int     `json:"actions_applied"`
	ActionsIgnored  int     `json:"actions_ignored"`
}

// New creates an agent with the switch ON.
func New(opts Options) (*Agent, error) {
	if opts.MQTTClient == nil {
		return nil, fmt.Errorf("%w: MQTT client is required", ErrInvalidOptions)
	}
	if opts.Device.ID == "" {
		return nil, fmt.Errorf("%w: device id is required", ErrInvalidOptions)
	}
	if opts.Agent.PublishInterval <= 0 {
		return nil, fmt.Errorf("%w: publish interval must be positive", ErrInvalidOptions)
	}

	a := &Agent{
		id: opts.Device.ID,
		descriptor: descriptor.DeviceDescriptor{
			DeviceID:        opts.Device.ID,
			Producer:        opts.Device.Producer,
			SoftwareVersion: opts.Device.SoftwareVersion,
		},
		cfg:       opts.Agent,
		qos:       opts.QoS,
		actionQoS: opts.ActionQoS,
		mqtt:      opts.MQTTClient,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		now:       opts.Now,
		sensor:    opts.Sensor,
		actuator:  device.NewSwitchActuator(),
	}
	a.actionFilter = a.topics.DeviceAction(a.id, mqtt.KindSwitch)

	if a.logger == nil {
		a.logger = noopLogger{}
	}
	if a.now == nil {
		a.now = time.Now
	}
	if a.sensor == nil {
		a.sensor = device.NewTemperatureSensor(opts.Agent.Sensor.Min, opts.Agent.Sensor.Max, nil)
	}

	return a, nil
}

// Run starts the agent and blocks until ctx is cancelled or the message
// limit is reached.
//
// It subscribes to the action topic, publishes the retained identity and the
// initial switch state, then ticks every publish interval. A failed
// subscription is returned; failed publishes are logged and the loop goes on.
func (a *Agent) Run(ctx context.Context) error {
	if err := a.mqtt.Subscribe(a.actionFilter, a.actionQoS, a.onMessage); err != nil {
		return fmt.Errorf("subscribe to actions: %w", err)
	}
	a.logger.Info("subscribed to actions", "topic", a.actionFilter, "qos", a.actionQoS)

	a.publishInfo()

	a.mu.Lock()
	_ = a.publishSwitchLocked()
	a.mu.Unlock()

	ticker := time.NewTicker(a.cfg.PublishInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("telemetry loop stopped", "reason", ctx.Err())
			return nil
		case <-ticker.C:
			if a.tick() {
				a.logger.Info("message limit reached", "limit", a.cfg.MessageLimit)
				return nil
			}
		}
	}
}

// tick runs one telemetry iteration and reports whether the message limit
// has been reached.
func (a *Agent) tick() (done bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	sample := a.sensor.Measure()
	a.lastSample = sample
	a.ticks++
	limitReached := a.cfg.MessageLimit > 0 && a.ticks >= a.cfg.MessageLimit

	if !a.actuator.IsOn() {
		a.metrics.incSkipped()
		a.logger.Debug("switch is OFF, telemetry silenced", "sample", sample)
		return limitReached
	}

	ts := a.now().Unix()
	_ = a.publishDescriptor(a.topics.DeviceTelemetry(a.id, mqtt.KindTemperature), mqtt.KindTemperature,
		descriptor.MessageDescriptor{
			Timestamp: ts,
			Type:      descriptor.TypeTemperatureSensor,
			Value:     descriptor.Number(sample),
		})

	if sample > a.cfg.AlertThreshold {
		_ = a.publishDescriptor(a.topics.DeviceEvent(a.id), "event",
			descriptor.EventDescriptor{
				Timestamp:  ts,
				EventType:  descriptor.EventOverHeating,
				EventValue: descriptor.Number(sample),
			})
	}

	return limitReached
}

// publishInfo publishes the retained DeviceDescriptor.
func (a *Agent) publishInfo() {
	data, err := a.descriptor.Encode()
	if err != nil {
		a.logger.Error("encoding device descriptor", "error", err)
		return
	}
	topic := a.topics.DeviceInfo(a.id)
	if err := a.mqtt.PublishRetained(topic, data); err != nil {
		a.metrics.incPublishError()
		a.logger.Error("publishing device info", "topic", topic, "error", err)
		return
	}
	a.metrics.incPublished("info")
	a.logger.Info("device info published", "topic", topic, "producer", a.descriptor.Producer)
}

// publishSwitchLocked reports the current actuator state. Caller holds mu.
func (a *Agent) publishSwitchLocked() error {
	return a.publishDescriptor(a.topics.DeviceTelemetry(a.id, mqtt.KindSwitch), mqtt.KindSwitch,
		descriptor.MessageDescriptor{
			Timestamp: a.now().Unix(),
			Type:      descriptor.TypeSwitch,
			Value:     descriptor.String(a.actuator.State().String()),
		})
}

type encoder interface {
	Encode() ([]byte, error)
}

func (a *Agent) publishDescriptor(topic, kind string, d encoder) error {
	data, err := d.Encode()
	if err != nil {
		a.logger.Error("encoding descriptor", "topic", topic, "error", err)
		return err
	}
	if err := a.mqtt.Publish(topic, data, a.qos, false); err != nil {
		a.metrics.incPublishError()
		a.logger.Error("publish failed", "topic", topic, "error", err)
		return err
	}
	a.metrics.incPublished(kind)
	a.logger.Debug("published", "topic", topic, "payload", string(data))
	return nil
}

// Snapshot returns a copy of the current agent state.
func (a *Agent) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	return Snapshot{
		DeviceID:        a.id,
		Switch:          a.actuator.State().String(),
		LastTemperature: a.lastSample,
		Ticks:           a.ticks,
		MessageLimit:    a.cfg.MessageLimit,
		ActionsApplied:  a.applied,
		ActionsIgnored:  a.ignored,
	}
}
