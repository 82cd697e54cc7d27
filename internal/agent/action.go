package agent

import (
	"fmt"

	"github.com/Distributed-IoT-Software-Arch-Course/go-mqtt-playground/internal/descriptor"
	"github.com/Distributed-IoT-Software-Arch-Course/go-mqtt-playground/internal/device"
	"github.com/Distributed-IoT-Software-Arch-Course/go-mqtt-playground/internal/infrastructure/mqtt"
)

// onMessage is the subscription callback. HandleMessage already logs every
// outcome, so the error is not handed back to the transport.
func (a *Agent) onMessage(msg mqtt.Message) error {
	_ = a.HandleMessage(msg)
	return nil
}

// HandleMessage processes one inbound action message.
//
// Outcomes:
//   - topic outside the action filter: ErrUnmanagedTopic
//   - payload not an ActionDescriptor: descriptor.ErrDecode
//   - action the switch does not implement: ErrUnmanagedAction
//   - commanded value equal to the current state: nil, nothing published
//   - accepted transition: the switch changes and its new state is published
//
// Every outcome is logged; no outcome changes state except the last.
func (a *Agent) HandleMessage(msg mqtt.Message) error {
	if !mqtt.TopicMatches(a.actionFilter, msg.Topic) {
		a.metrics.incAction(resultUnmanaged)
		a.logger.Warn("unmanaged topic", "topic", msg.Topic)
		return fmt.Errorf("%w: %s", ErrUnmanagedTopic, msg.Topic)
	}

	action, err := descriptor.DecodeAction(msg.Payload)
	if err != nil {
		a.metrics.incAction(resultInvalid)
		a.logger.Warn("invalid action payload", "topic", msg.Topic, "error", err)
		return err
	}

	if action.ActionType != descriptor.ActionSwitch {
		a.metrics.incAction(resultUnmanaged)
		a.logger.Warn("unmanaged action received", "action_type", action.ActionType, "action_value", action.ActionValue)
		return fmt.Errorf("%w: type %q", ErrUnmanagedAction, action.ActionType)
	}

	target, err := device.ParseSwitchState(action.ActionValue)
	if err != nil {
		a.metrics.incAction(resultUnmanaged)
		a.logger.Warn("unmanaged action received", "action_type", action.ActionType, "action_value", action.ActionValue)
		return fmt.Errorf("%w: %w", ErrUnmanagedAction, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	current := a.actuator.State()
	if current == target {
		a.ignored++
		a.metrics.incAction(resultDuplicate)
		a.logger.Info("unmanaged/duplicate action ignored",
			"switch", current.String(),
			"duplicate", msg.Duplicate,
		)
		return nil
	}

	a.actuator.SetState(target)
	a.applied++
	a.metrics.incAction(resultApplied)
	a.logger.Info("switch changed", "from", current.String(), "to", target.String())

	if err := a.publishSwitchLocked(); err != nil {
		return fmt.Errorf("publish switch telemetry: %w", err)
	}
	return nil
}
