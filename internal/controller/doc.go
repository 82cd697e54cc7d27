// Package controller implements the data consumer that protects one smart
// object from overheating.
//
// A Monitor subscribes to the target device's info, telemetry and event
// topics. Every temperature sample above the configured limit produces an
// immediate SWITCH OFF action and a delayed SWITCH ON (a "re-arm") handled by
// the Scheduler.
//
// Re-arm policies:
//
//   - replace (default): a new breach cancels the pending re-arm and starts a
//     fresh delay, so the device stays off for the full delay after the last
//     breach.
//   - reject: while a re-arm is pending, further breaches only publish OFF.
//   - unbounded: every breach schedules its own re-arm.
//
// When a Store is configured, pending re-arms are written to SQLite and
// restored on Start; overdue entries fire straight away. A re-arm that cannot
// be delivered after the configured attempts stays in the store.
//
// Decisions (breaches, actions, re-arm outcomes) are reported to a Recorder;
// the InfluxDB writer implements it.
package controller
