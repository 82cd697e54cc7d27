// Package descriptor defines the JSON records exchanged on the MQTT bus.
//
// Four descriptors cross the wire:
//
//	DeviceDescriptor   device/<id>/info (retained)
//	MessageDescriptor  device/<id>/telemetry/<kind>
//	EventDescriptor    device/<id>/event
//	ActionDescriptor   device/<id>/action/<kind>
//
// Field names are camelCase on the wire. Decoding is strict: unknown fields,
// missing fields, wrong JSON types and trailing data are rejected with an
// error matching ErrDecode. Callers treat ErrDecode as a per-message failure
// and keep running.
//
// For every valid descriptor x, Decode(Encode(x)) == x.
package descriptor
