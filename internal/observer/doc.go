// Package observer implements the passive fleet observer.
//
// The observer subscribes to device info and telemetry for one device or,
// with the "+" filter, for every device. It keeps a last-seen registry
// keyed by device id and never publishes anything back to the broker.
//
// Malformed payloads and topics outside the two subscribed families are
// logged and counted, then dropped; they never stop message processing.
package observer
