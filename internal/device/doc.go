// Package device models the hardware of a smart object: a simulated
// temperature sensor and a binary switch actuator.
//
// Neither model performs I/O or notifies anyone of changes. The agent that
// owns them decides when to sample, when to mutate and what to publish, and
// it serialises access; the models themselves are not safe for concurrent use.
package device
