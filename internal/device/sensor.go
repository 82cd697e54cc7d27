package device

import "math/rand"

// Default sensor bounds in degrees Celsius.
const (
	DefaultTemperatureMin = 20.0
	DefaultTemperatureMax = 40.0
)

// TemperatureSensor produces temperature samples uniformly distributed in
// [Min, Max).
type TemperatureSensor struct {
	min   float64
	max   float64
	rng   *rand.Rand
	value float64
}

// NewTemperatureSensor creates a sensor and takes a first sample. A nil rng
// uses the package-level source.
func NewTemperatureSensor(minValue, maxValue float64, rng *rand.Rand) *TemperatureSensor {
	s := &TemperatureSensor{
		min: minValue,
		max: maxValue,
		rng: rng,
	}
	s.Measure()
	return s
}

// Measure takes a new sample, stores it and returns it.
func (s *TemperatureSensor) Measure() float64 {
	var r float64
	if s.rng != nil {
		r = s.rng.Float64()
	} else {
		r = rand.Float64() //nolint:gosec // simulated sensor, not security sensitive
	}
	s.value = s.min + r*(s.max-s.min)
	return s.value
}

// Value returns the last sample.
func (s *TemperatureSensor) Value() float64 {
	return s.value
}

// Bounds returns the sampling range.
func (s *TemperatureSensor) Bounds() (minValue, maxValue float64) {
	return s.min, s.max
}
