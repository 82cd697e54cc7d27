// Package agent implements the smart object: a device that samples a
// temperature sensor, publishes telemetry and obeys switch commands.
//
// An Agent owns one sensor, one switch actuator and the MQTT handle. Two
// duties run concurrently:
//
//   - the telemetry loop (Run) publishes the retained identity, the initial
//     switch state, and then one temperature sample per interval while the
//     switch is ON, plus an OVER_HEATING event when the sample is above the
//     alert threshold;
//   - the action listener (HandleMessage) applies SWITCH commands received on
//     device/<id>/action/switch, ignoring commands that would not change the
//     state, and reports every accepted change on the switch telemetry topic.
//
// Both duties take the agent mutex for their whole read-check-publish or
// mutate-publish sequence, so a tick never observes a half-applied command.
//
// Per-message failures (unmanaged topics, malformed payloads, publish errors)
// are logged and contained; they never stop either duty.
package agent
