package controller

import "github.com/Distributed-IoT-Software-Arch-Course/go-mqtt-playground/internal/descriptor"

// Re-arm outcomes passed to Recorder.RecordRearm.
const (
	RearmScheduled = "scheduled"
	RearmReplaced  = "replaced"
	RearmRejected  = "rejected"
	RearmFired     = "fired"
	RearmFailed    = "failed"
	RearmCancelled = "cancelled"
)

// Recorder receives the monitor's decisions for auditing. Implementations
// must not block; *influxdb.Client writes asynchronously.
type Recorder interface {
	RecordBreach(deviceID string, value, limit float64)
	RecordAction(deviceID string, action descriptor.ActionDescriptor, reason string)
	RecordRearm(deviceID, outcome string)
}

type noopRecorder struct{}

func (noopRecorder) RecordBreach(string, float64, float64)                    {}
func (noopRecorder) RecordAction(string, descriptor.ActionDescriptor, string) {}
func (noopRecorder) RecordRearm(string, string)                               {}
