// Package nats implements the broker's messaging ports on top of NATS
// JetStream: a pull consumer for the upstream queue, and a publisher
// for the per-RP outbound topics, both backed by durable streams.
package nats

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// Config holds the NATS connection settings.
type Config struct {
	URL           string
	Name          string
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultConfig returns sensible connection defaults.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		Name:          "rp-notify-broker",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// Conn wraps a raw NATS connection shared by the consumer and publisher.
type Conn struct {
	nc *nats.Conn
}

// Connect opens a NATS connection with the given configuration.
func Connect(cfg Config) (*Conn, error) {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &Conn{nc: nc}, nil
}

// Close drains and closes the underlying connection.
func (c *Conn) Close() error {
	return c.nc.Drain()
}

// IsConnected reports whether the underlying connection is up.
func (c *Conn) IsConnected() bool {
	return c.nc.IsConnected()
}
