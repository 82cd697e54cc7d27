// Package influxdb records the controller's decisions in InfluxDB.
//
// The Client implements the controller's Recorder: every threshold breach,
// every published action and every re-arm outcome becomes one point.
//
//	measurement        tags                                             fields
//	threshold_breach   device_id                                        value, limit
//	controller_action  device_id, action_type, action_value, reason     count
//	rearm              device_id, outcome                               count
//
// Raw telemetry is not written; the broker is the source of truth for it.
//
// Writes go through the client's non-blocking batched write API, sized by
// influxdb.batch_size and influxdb.flush_interval. Write failures arrive
// asynchronously through SetOnError. Connect and HealthCheck errors are
// returned directly.
package influxdb
