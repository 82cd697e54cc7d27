package mqtt

import (
	"errors"
	"fmt"

	"github.com/sony/gobreaker"

	"github.com/Distributed-IoT-Software-Arch-Course/go-mqtt-playground/internal/infrastructure/config"
)

// newPublishBreaker returns a breaker that opens after cfg.ConsecutiveFailures
// failed publishes and stays open for cfg.OpenTimeout. Returns nil when disabled.
func newPublishBreaker(name string, cfg config.BreakerConfig) *gobreaker.CircuitBreaker {
	if !cfg.Enabled || cfg.ConsecutiveFailures < 1 {
		return nil
	}
	threshold := uint32(cfg.ConsecutiveFailures) //nolint:gosec // validated >= 1

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "mqtt-publish-" + name,
		Timeout: cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
	})
}

// guard runs publish through the breaker when one is configured.
func (c *Client) guard(publish func() error) error {
	if c.breaker == nil {
		return publish()
	}

	_, err := c.breaker.Execute(func() (any, error) {
		return nil, publish()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", ErrCircuitOpen, err)
	}
	return err
}

// BreakerState reports the publish breaker state ("closed", "half-open",
// "open"), or "disabled".
func (c *Client) BreakerState() string {
	if c.breaker == nil {
		return "disabled"
	}
	return c.breaker.State().String()
}
