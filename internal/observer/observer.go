package observer

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Distributed-IoT-Software-Arch-Course/go-mqtt-playground/internal/descriptor"
	"github.com/Distributed-IoT-Software-Arch-Course/go-mqtt-playground/internal/infrastructure/mqtt"
)

// allDevices is the device filter that watches every device.
const allDevices = "+"

const (
	categoryInfo      = "info"
	categoryTelemetry = "telemetry"
	categoryUnmanaged = "unmanaged"
)

// MQTTClient is the subset of the MQTT client the observer needs.
type MQTTClient interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Logger defines the logging interface used by the observer.
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

// Device is what the observer knows about one device.
type Device struct {
	DeviceID        string    `json:"device_id"`
	Producer        string    `json:"producer,omitempty"`
	SoftwareVersion string    `json:"software_version,omitempty"`
	RetainedInfo    bool      `json:"retained_info"`
	LastTemperature *float64  `json:"last_temperature,omitempty"`
	LastSwitch      string    `json:"last_switch,omitempty"`
	LastSeen        time.Time `json:"last_seen"`
	Messages        int       `json:"messages"`
}

// Options holds everything needed to build an Observer.
type Options struct {
	// DeviceFilter is a single topic level: "+" for every device or one id.
	DeviceFilter string
	QoS          byte

	MQTTClient MQTTClient
	Logger     Logger
	Metrics    *Metrics

	// Now defaults to time.Now.
	Now func() time.Time
}

// Observer keeps a last-seen registry of devices. It never publishes.
//
// Thread Safety: HandleMessage and Devices may be called concurrently.
type Observer struct {
	qos     byte
	mqtt    MQTTClient
	logger  Logger
	metrics *Metrics
	now     func() time.Time

	infoFilter      string
	telemetryFilter string

	mu      sync.RWMutex
	devices map[string]*Device
}

// New creates an observer.
func New(opts Options) (*Observer, error) {
	if opts.MQTTClient == nil {
		return nil, fmt.Errorf("%w: MQTT client is required", ErrInvalidOptions)
	}
	filter := opts.DeviceFilter
	if filter == "" {
		filter = allDevices
	}
	if strings.ContainsAny(filter, "/#") || !mqtt.ValidFilter(filter) {
		return nil, fmt.Errorf("%w: device filter %q must be one topic level", ErrInvalidOptions, filter)
	}

	var topics mqtt.Topics
	o := &Observer{
		qos:             opts.QoS,
		mqtt:            opts.MQTTClient,
		logger:          opts.Logger,
		metrics:         opts.Metrics,
		now:             opts.Now,
		infoFilter:      topics.DeviceInfo(filter),
		telemetryFilter: topics.DeviceTelemetryAll(filter),
		devices:         make(map[string]*Device),
	}
	if o.logger == nil {
		o.logger = noopLogger{}
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o, nil
}

// Start subscribes to the info and telemetry filters.
func (o *Observer) Start(_ context.Context) error {
	for _, filter := range []string{o.infoFilter, o.telemetryFilter} {
		if err := o.mqtt.Subscribe(filter, o.qos, o.onMessage); err != nil {
			return fmt.Errorf("subscribe to %s: %w", filter, err)
		}
		o.logger.Info("subscribed", "topic", filter, "qos", o.qos)
	}
	return nil
}

// Stop unsubscribes from the info and telemetry filters. The registry is kept.
func (o *Observer) Stop() {
	for _, filter := range []string{o.infoFilter, o.telemetryFilter} {
		if err := o.mqtt.Unsubscribe(filter); err != nil {
			o.logger.Warn("unsubscribe failed", "topic", filter, "error", err)
		}
	}
}

func (o *Observer) onMessage(msg mqtt.Message) error {
	_ = o.HandleMessage(msg)
	return nil
}

// HandleMessage records one message. Every outcome is logged.
func (o *Observer) HandleMessage(msg mqtt.Message) error {
	deviceID, ok := mqtt.DeviceIDFromTopic(msg.Topic)

	switch {
	case ok && mqtt.TopicMatches(o.infoFilter, msg.Topic):
		return o.handleInfo(deviceID, msg)
	case ok && mqtt.TopicMatches(o.telemetryFilter, msg.Topic):
		return o.handleTelemetry(deviceID, msg)
	default:
		o.metrics.incMessage(categoryUnmanaged, "dropped")
		o.logger.Warn("unmanaged topic", "topic", msg.Topic)
		return fmt.Errorf("%w: %s", ErrUnmanagedTopic, msg.Topic)
	}
}

func (o *Observer) handleInfo(deviceID string, msg mqtt.Message) error {
	info, err := descriptor.DecodeDevice(msg.Payload)
	if err != nil {
		o.metrics.incMessage(categoryInfo, "decode_error")
		o.logger.Warn("invalid payload", "topic", msg.Topic, "error", err)
		return err
	}
	if info.DeviceID != deviceID {
		o.metrics.incMessage(categoryInfo, "device_mismatch")
		o.logger.Warn("descriptor device does not match topic",
			"topic", msg.Topic,
			"device_id", deviceID,
			"descriptor_device_id", info.DeviceID,
		)
		return fmt.Errorf("%w: topic %s, descriptor %s", ErrDeviceMismatch, deviceID, info.DeviceID)
	}

	o.update(deviceID, func(d *Device) {
		d.Producer = info.Producer
		d.SoftwareVersion = info.SoftwareVersion
		d.RetainedInfo = msg.Retained
	})
	o.metrics.incMessage(categoryInfo, "ok")
	o.logger.Info("device info",
		"device_id", deviceID,
		"producer", info.Producer,
		"software_version", info.SoftwareVersion,
		"retained", msg.Retained,
	)
	return nil
}

func (o *Observer) handleTelemetry(deviceID string, msg mqtt.Message) error {
	tm, err := descriptor.DecodeMessage(msg.Payload)
	if err != nil {
		o.metrics.incMessage(categoryTelemetry, "decode_error")
		o.logger.Warn("invalid payload", "topic", msg.Topic, "error", err)
		return err
	}

	o.update(deviceID, func(d *Device) {
		switch tm.Type {
		case descriptor.TypeTemperatureSensor:
			if v, ok := tm.Value.Float(); ok {
				d.LastTemperature = &v
			}
		case descriptor.TypeSwitch:
			d.LastSwitch = tm.Value.String()
		}
	})
	o.metrics.incMessage(categoryTelemetry, "ok")
	o.logger.Info("telemetry",
		"device_id", deviceID,
		"type", tm.Type,
		"value", tm.Value.String(),
		"timestamp", tm.Timestamp,
	)
	return nil
}

func (o *Observer) update(deviceID string, apply func(d *Device)) {
	o.mu.Lock()
	defer o.mu.Unlock()

	d, ok := o.devices[deviceID]
	if !ok {
		d = &Device{DeviceID: deviceID}
		o.devices[deviceID] = d
		o.metrics.setDevices(len(o.devices))
	}
	apply(d)
	d.LastSeen = o.now()
	d.Messages++
}

// Devices returns a copy of the registry sorted by device id.
func (o *Observer) Devices() []Device {
	o.mu.RLock()
	defer o.mu.RUnlock()

	out := make([]Device, 0, len(o.devices))
	for _, d := range o.devices {
		cp := *d
		if d.LastTemperature != nil {
			v := *d.LastTemperature
			cp.LastTemperature = &v
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out
}

// Device returns one registry entry.
func (o *Observer) Device(deviceID string) (Device, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	d, ok := o.devices[deviceID]
	if !ok {
		return Device{}, false
	}
	cp := *d
	if d.LastTemperature != nil {
		v := *d.LastTemperature
		cp.LastTemperature = &v
	}
	return cp, true
}
