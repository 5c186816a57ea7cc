package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Published is one captured publish call.
type Published struct {
	Topic string
	Body  []byte
}

// RecordingPublisher is an in-memory Publisher that captures every
// publish call instead of sending it anywhere. It backs the processor's
// fan-out unit tests, letting each scenario assert exactly which topics
// were published to and with what bodies.
type RecordingPublisher struct {
	mu        sync.Mutex
	published []Published
	failTopic string // when set, Publish fails for this exact topic
}

// NewRecordingPublisher constructs an empty RecordingPublisher.
func NewRecordingPublisher() *RecordingPublisher {
	return &RecordingPublisher{}
}

// FailOn makes subsequent publishes to topic return an error, modeling
// a single downstream publish failure within a larger fan-out.
func (p *RecordingPublisher) FailOn(topic string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failTopic = topic
}

// Publish implements Publisher.
func (p *RecordingPublisher) Publish(_ context.Context, topic string, body []byte) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failTopic != "" && topic == p.failTopic {
		return "", fmt.Errorf("recording publisher: simulated failure publishing to %s", topic)
	}

	p.published = append(p.published, Published{Topic: topic, Body: append([]byte(nil), body...)})
	return uuid.New().String(), nil
}

// Close implements Publisher.
func (p *RecordingPublisher) Close() error { return nil }

// Calls returns every captured publish call, in call order.
func (p *RecordingPublisher) Calls() []Published {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Published, len(p.published))
	copy(out, p.published)
	return out
}

// Topics returns the set of topics published to, in call order, with
// duplicates preserved.
func (p *RecordingPublisher) Topics() []string {
	calls := p.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Topic
	}
	return out
}

// ErrNotFound is returned by BodyFor when no publish matched the topic.
var ErrNotFound = errors.New("no published message for topic")

// BodyFor returns the body of the first publish to topic.
func (p *RecordingPublisher) BodyFor(topic string) ([]byte, error) {
	for _, c := range p.Calls() {
		if c.Topic == topic {
			return c.Body, nil
		}
	}
	return nil, ErrNotFound
}
