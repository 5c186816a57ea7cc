// Package messaging defines the broker's two wire-facing ports: the
// upstream Consumer it pulls batches from, and the outbound Publisher
// port it fans out to. Both are interfaces so the processor can be
// exercised against in-memory test doubles, separating the Consumer/
// Publisher ports from their concrete NATS implementation.
package messaging

import "context"

// InboundMessage is one message pulled from the upstream queue.
type InboundMessage interface {
	// Data is the raw message payload.
	Data() []byte

	// Ack acknowledges successful processing, removing the message from
	// the upstream queue's redelivery set.
	Ack() error

	// Nak signals processing failure; the upstream queue will redeliver
	// the message after its visibility timeout.
	Nak() error
}

// Consumer pulls batches of up to n messages from the upstream queue.
type Consumer interface {
	// FetchBatch blocks until at least one message is available (or ctx
	// is done) and returns up to n of them.
	FetchBatch(ctx context.Context, n int) ([]InboundMessage, error)

	// Close releases the consumer's underlying connection.
	Close() error
}

// Publisher is the outbound fan-out port: publish(topic, body) ->
// message_id. Failure is always transient from the processor's point
// of view — it surfaces to the caller, who lets the upstream message
// be redelivered.
type Publisher interface {
	Publish(ctx context.Context, topic string, body []byte) (messageID string, err error)

	// Close releases the publisher's underlying connection.
	Close() error
}
