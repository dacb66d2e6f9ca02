package busclient

import (
	"log/slog"

	"github.com/benbjohnson/clock"

	"github.com/ralic/gnu-woodchuck/metric"
)

// Option is a functional option for configuring the Client.
type Option func(*Client) error

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger.With("component", "busclient")
		return nil
	}
}

// WithClock injects the clock used for property TTL bookkeeping. Tests
// pass a mock clock to make cache expiry deterministic.
func WithClock(clk clock.Clock) Option {
	return func(c *Client) error {
		if clk != nil {
			c.clk = clk
		}
		return nil
	}
}

// WithMetrics attaches a metrics sink. A nil sink disables
// instrumentation.
func WithMetrics(m *metric.Metrics) Option {
	return func(c *Client) error {
		c.metrics = m
		return nil
	}
}
