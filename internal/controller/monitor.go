package controller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Distributed-IoT-Software-Arch-Course/go-mqtt-playground/internal/descriptor"
	"github.com/Distributed-IoT-Software-Arch-Course/go-mqtt-playground/internal/infrastructure/config"
	"github.com/Distributed-IoT-Software-Arch-Course/go-mqtt-playground/internal/infrastructure/mqtt"
)

// Message categories, also used as metric labels.
const (
	categoryInfo      = "info"
	categoryTelemetry = "telemetry"
	categoryEvent     = "event"
	categoryUnmanaged = "unmanaged"
)

// Action reasons passed to Recorder.RecordAction.
const (
	reasonBreach = "threshold_breach"
	reasonRearm  = "rearm"
)

// MQTTClient is the subset of the MQTT client the monitor needs.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Logger defines the logging interface used by the controller.
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

// Options holds everything needed to build a Monitor.
type Options struct {
	Controller config.ControllerConfig

	// QoS is used for the subscriptions; ActionQoS for published actions.
	QoS       byte
	ActionQoS byte

	MQTTClient MQTTClient

	// Store makes pending re-arms survive a restart. Optional.
	Store Store

	// Recorder audits decisions. Optional.
	Recorder Recorder

	Logger  Logger
	Metrics *Metrics

	// Now and AfterFunc default to the real clock.
	Now       func() time.Time
	AfterFunc AfterFunc

	// RetryInterval is the first backoff interval of re-arm publish retries.
	RetryInterval time.Duration
}

// Monitor watches one device and switches it off when it runs too hot,
// switching it back on after a delay.
//
// Thread Safety: HandleMessage may be called concurrently; state is guarded
// by an internal mutex.
type Monitor struct {
	target    string
	limit     float64
	qos       byte
	actionQoS byte

	mqtt      MQTTClient
	scheduler *Scheduler
	recorder  Recorder
	logger    Logger
	metrics   *Metrics
	now       func() time.Time

	topics          mqtt.Topics
	infoFilter      string
	telemetryFilter string
	eventFilter     string
	actionTopic     string

	mu    sync.Mutex
	state monitorState

	stopOnce sync.Once
}

type monitorState struct {
	info            *descriptor.DeviceDescriptor
	infoRetained    bool
	lastTemperature *float64
	lastSwitch      string
	lastSeen        time.Time
	breaches        int
	actionsSent     int
	events          int
	unmanaged       int
	decodeErrors    int
}

// Snapshot is a point-in-time copy of the monitor's view of its device.
type Snapshot struct {
	TargetDevice     string                       `json:"target_device"`
	TemperatureLimit float64                      `json:"temperature_limit"`
	Info             *descriptor.DeviceDescriptor `json:"info,omitempty"`
	InfoRetained     bool                         `json:"info_retained"`
	LastTemperature  *float64                     `json:"last_temperature,omitempty"`
	LastSwitch       string                       `json:"last_switch,omitempty"`
	LastSeen         *time.Time                   `json:"last_seen,omitempty"`
	Breaches         int                          `json:"breaches"`
	ActionsSent      int                          `json:"actions_sent"`
	Events           int                          `json:"events"`
	Unmanaged        int                          `json:"unmanaged"`
	DecodeErrors     int                          `json:"decode_errors"`
	PendingRearms    []Rearm                      `json:"pending_rearms"`
}

// New creates a monitor for Controller.TargetDevice.
func New(opts Options) (*Monitor, error) {
	if opts.MQTTClient == nil {
		return nil, fmt.Errorf("%w: MQTT client is required", ErrInvalidOptions)
	}
	if opts.Controller.TargetDevice == "" {
		return nil, fmt.Errorf("%w: target device is required", ErrInvalidOptions)
	}

	m := &Monitor{
		target:    opts.Controller.TargetDevice,
		limit:     opts.Controller.TemperatureLimit,
		qos:       opts.QoS,
		actionQoS: opts.ActionQoS,
		mqtt:      opts.MQTTClient,
		recorder:  opts.Recorder,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		now:       opts.Now,
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.recorder == nil {
		m.recorder = noopRecorder{}
	}
	if m.logger == nil {
		m.logger = noopLogger{}
	}

	m.infoFilter = m.topics.DeviceInfo(m.target)
	m.telemetryFilter = m.topics.DeviceTelemetryAll(m.target)
	m.eventFilter = m.topics.DeviceEventAll(m.target)
	m.actionTopic = m.topics.DeviceAction(m.target, mqtt.KindSwitch)

	scheduler, err := NewScheduler(SchedulerOptions{
		Policy:        opts.Controller.RearmPolicy,
		Delay:         opts.Controller.RearmDelay,
		Attempts:      opts.Controller.RearmAttempts,
		RetryInterval: opts.RetryInterval,
		Publish:       m.publishRearm,
		Store:         opts.Store,
		Recorder:      m.recorder,
		Logger:        m.logger,
		Metrics:       m.metrics,
		Now:           opts.Now,
		AfterFunc:     opts.AfterFunc,
	})
	if err != nil {
		return nil, err
	}
	m.scheduler = scheduler

	return m, nil
}

// Start restores durable re-arms and subscribes to the target device's info,
// telemetry and event topics.
func (m *Monitor) Start(ctx context.Context) error {
	restored, err := m.scheduler.Restore(ctx)
	if err != nil {
		// Subscriptions go ahead without the restored entries.
		m.logger.Error("restoring pending re-arms", "error", err)
	} else if restored > 0 {
		m.logger.Info("pending re-arms restored", "count", restored)
	}

	for _, filter := range []string{m.infoFilter, m.telemetryFilter, m.eventFilter} {
		if err := m.mqtt.Subscribe(filter, m.qos, m.onMessage); err != nil {
			return fmt.Errorf("subscribe to %s: %w", filter, err)
		}
		m.logger.Info("subscribed", "topic", filter, "qos", m.qos)
	}

	m.logger.Info("monitor started",
		"target_device", m.target,
		"temperature_limit", m.limit,
	)
	return nil
}

// Stop unsubscribes from the device topics and cancels pending re-arm
// timers. Durable entries survive for the next Start.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		for _, filter := range []string{m.infoFilter, m.telemetryFilter, m.eventFilter} {
			if err := m.mqtt.Unsubscribe(filter); err != nil {
				m.logger.Warn("unsubscribe failed", "topic", filter, "error", err)
			}
		}
		m.scheduler.Stop()
		m.logger.Info("monitor stopped")
	})
}

// Scheduler exposes the re-arm scheduler.
func (m *Monitor) Scheduler() *Scheduler {
	return m.scheduler
}

func (m *Monitor) onMessage(msg mqtt.Message) error {
	_ = m.HandleMessage(msg)
	return nil
}

// HandleMessage dispatches one inbound message. Topics are tried in the
// fixed order info, telemetry, event; anything else is ErrUnmanagedTopic.
// Every outcome is logged.
func (m *Monitor) HandleMessage(msg mqtt.Message) error {
	switch {
	case mqtt.TopicMatches(m.infoFilter, msg.Topic):
		return m.handleInfo(msg)
	case mqtt.TopicMatches(m.telemetryFilter, msg.Topic):
		return m.handleTelemetry(msg)
	case mqtt.TopicMatches(m.eventFilter, msg.Topic):
		return m.handleEvent(msg)
	default:
		m.mu.Lock()
		m.state.unmanaged++
		m.mu.Unlock()
		m.metrics.incMessage(categoryUnmanaged, "dropped")
		m.logger.Warn("unmanaged topic", "topic", msg.Topic)
		return fmt.Errorf("%w: %s", ErrUnmanagedTopic, msg.Topic)
	}
}

func (m *Monitor) handleInfo(msg mqtt.Message) error {
	info, err := descriptor.DecodeDevice(msg.Payload)
	if err != nil {
		return m.decodeFailed(categoryInfo, msg, err)
	}
	if info.DeviceID != m.target {
		m.metrics.incMessage(categoryInfo, "device_mismatch")
		m.logger.Warn("descriptor device does not match topic",
			"topic", msg.Topic,
			"device_id", m.target,
			"descriptor_device_id", info.DeviceID,
		)
		return fmt.Errorf("%w: topic %s, descriptor %s", ErrDeviceMismatch, m.target, info.DeviceID)
	}

	m.mu.Lock()
	m.state.info = &info
	m.state.infoRetained = msg.Retained
	m.state.lastSeen = m.now()
	m.mu.Unlock()

	m.metrics.incMessage(categoryInfo, "ok")
	m.logger.Info("device info received",
		"device_id", info.DeviceID,
		"producer", info.Producer,
		"software_version", info.SoftwareVersion,
		"retained", msg.Retained,
	)
	return nil
}

func (m *Monitor) handleEvent(msg mqtt.Message) error {
	ev, err := descriptor.DecodeEvent(msg.Payload)
	if err != nil {
		return m.decodeFailed(categoryEvent, msg, err)
	}

	m.mu.Lock()
	m.state.events++
	m.state.lastSeen = m.now()
	m.mu.Unlock()

	m.metrics.incMessage(categoryEvent, "ok")
	m.logger.Info("device event received",
		"topic", msg.Topic,
		"event_type", ev.EventType,
		"event_value", ev.EventValue.String(),
		"timestamp", ev.Timestamp,
	)
	return nil
}

func (m *Monitor) handleTelemetry(msg mqtt.Message) error {
	tm, err := descriptor.DecodeMessage(msg.Payload)
	if err != nil {
		return m.decodeFailed(categoryTelemetry, msg, err)
	}

	m.logger.Debug("telemetry received",
		"topic", msg.Topic,
		"type", tm.Type,
		"value", tm.Value.String(),
		"timestamp", tm.Timestamp,
	)

	switch tm.Type {
	case descriptor.TypeTemperatureSensor:
		value, ok := tm.Value.Float()
		if !ok {
			return m.decodeFailed(categoryTelemetry, msg,
				fmt.Errorf("%w: temperature value %q is not numeric", descriptor.ErrDecode, tm.Value.String()))
		}
		m.mu.Lock()
		m.state.lastTemperature = &value
		m.state.lastSeen = m.now()
		m.mu.Unlock()
		m.metrics.incMessage(categoryTelemetry, "ok")
		return m.evaluate(value)

	case descriptor.TypeSwitch:
		m.mu.Lock()
		m.state.lastSwitch = tm.Value.String()
		m.state.lastSeen = m.now()
		m.mu.Unlock()
		m.metrics.incMessage(categoryTelemetry, "ok")
		m.logger.Info("switch state reported", "device_id", m.target, "switch", tm.Value.String())
		return nil

	default:
		m.metrics.incMessage(categoryTelemetry, "ignored")
		m.logger.Debug("telemetry type not evaluated", "type", tm.Type)
		return nil
	}
}

// evaluate applies the threshold policy to one temperature sample.
func (m *Monitor) evaluate(value float64) error {
	if value <= m.limit {
		return nil
	}

	m.mu.Lock()
	m.state.breaches++
	m.mu.Unlock()
	m.metrics.incBreach()
	m.recorder.RecordBreach(m.target, value, m.limit)
	m.logger.Warn("temperature limit exceeded",
		"device_id", m.target,
		"value", value,
		"limit", m.limit,
	)

	off := descriptor.SwitchAction(descriptor.ValueOff)
	if err := m.publishAction(off, reasonBreach); err != nil {
		return err
	}

	on := descriptor.SwitchAction(descriptor.ValueOn)
	if _, _, err := m.scheduler.Schedule(context.Background(), m.target, m.actionTopic, on); err != nil {
		m.logger.Error("scheduling re-arm", "device_id", m.target, "error", err)
		return fmt.Errorf("scheduling re-arm: %w", err)
	}
	return nil
}

func (m *Monitor) publishRearm(r Rearm) error {
	return m.publishActionTo(r.Topic, r.Action, reasonRearm)
}

func (m *Monitor) publishAction(action descriptor.ActionDescriptor, reason string) error {
	return m.publishActionTo(m.actionTopic, action, reason)
}

func (m *Monitor) publishActionTo(topic string, action descriptor.ActionDescriptor, reason string) error {
	payload, err := action.Encode()
	if err != nil {
		return fmt.Errorf("encoding action: %w", err)
	}
	if err := m.mqtt.Publish(topic, payload, m.actionQoS, false); err != nil {
		m.logger.Error("publishing action", "topic", topic, "action", action.ActionValue, "error", err)
		return fmt.Errorf("publishing %s action: %w", action.ActionValue, err)
	}

	m.mu.Lock()
	m.state.actionsSent++
	m.mu.Unlock()
	m.metrics.incAction(action.ActionValue, reason)
	m.recorder.RecordAction(m.target, action, reason)
	m.logger.Info("action published",
		"topic", topic,
		"action_type", action.ActionType,
		"action_value", action.ActionValue,
		"reason", reason,
	)
	return nil
}

func (m *Monitor) decodeFailed(category string, msg mqtt.Message, err error) error {
	m.mu.Lock()
	m.state.decodeErrors++
	m.mu.Unlock()
	m.metrics.incMessage(category, "decode_error")
	m.logger.Warn("invalid payload", "topic", msg.Topic, "category", category, "error", err)
	return err
}

// Snapshot returns a copy of the monitor's state.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	st := m.state
	m.mu.Unlock()

	snap := Snapshot{
		TargetDevice:     m.target,
		TemperatureLimit: m.limit,
		InfoRetained:     st.infoRetained,
		LastSwitch:       st.lastSwitch,
		Breaches:         st.breaches,
		ActionsSent:      st.actionsSent,
		Events:           st.events,
		Unmanaged:        st.unmanaged,
		DecodeErrors:     st.decodeErrors,
		PendingRearms:    m.scheduler.Pending(m.target),
	}
	if st.info != nil {
		info := *st.info
		snap.Info = &info
	}
	if st.lastTemperature != nil {
		v := *st.lastTemperature
		snap.LastTemperature = &v
	}
	if !st.lastSeen.IsZero() {
		seen := st.lastSeen
		snap.LastSeen = &seen
	}
	return snap
}
