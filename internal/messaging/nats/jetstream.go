package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/rp-notify/broker/internal/messaging"
)

// JetStreamPublisher implements messaging.Publisher by publishing onto a
// JetStream stream so outbound per-RP topics are durable. NATS core
// publish acknowledgements carry no application-level id, so messageID
// is minted locally with google/uuid and attached as a message header.
type JetStreamPublisher struct {
	js jetstream.JetStream
}

// NewJetStreamPublisher constructs a JetStreamPublisher over an existing
// connection.
func NewJetStreamPublisher(conn *Conn) (*JetStreamPublisher, error) {
	js, err := jetstream.New(conn.nc)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}
	return &JetStreamPublisher{js: js}, nil
}

// Publish implements messaging.Publisher.
func (p *JetStreamPublisher) Publish(ctx context.Context, topic string, body []byte) (string, error) {
	messageID := uuid.New().String()

	msg := &nats.Msg{
		Subject: topic,
		Data:    body,
		Header:  nats.Header{"Message-Id": []string{messageID}},
	}

	if _, err := p.js.PublishMsg(ctx, msg); err != nil {
		return "", fmt.Errorf("publish to %s: %w", topic, err)
	}
	return messageID, nil
}

// Close implements messaging.Publisher; the underlying connection is
// owned by Conn, not the publisher, so there is nothing to release here.
func (p *JetStreamPublisher) Close() error { return nil }

// PullConsumer implements messaging.Consumer as a JetStream pull
// consumer, fetching up to batchSize messages per FetchBatch call.
type PullConsumer struct {
	conn     *Conn
	stream   jetstream.Stream
	consumer jetstream.Consumer
}

// StreamConfig defines the upstream notification stream.
type StreamConfig struct {
	Name     string
	Subjects []string
	MaxAge   time.Duration
}

// ConsumerConfig defines the broker's durable pull consumer.
type ConsumerConfig struct {
	Name          string
	FilterSubject string
	AckWait       time.Duration
	MaxDeliver    int
}

// NewPullConsumer ensures the stream and durable consumer exist and
// returns a ready-to-fetch PullConsumer.
func NewPullConsumer(ctx context.Context, conn *Conn, stream StreamConfig, consumer ConsumerConfig) (*PullConsumer, error) {
	js, err := jetstream.New(conn.nc)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	st, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     stream.Name,
		Subjects: stream.Subjects,
		MaxAge:   stream.MaxAge,
	})
	if err != nil {
		return nil, fmt.Errorf("create/update stream %s: %w", stream.Name, err)
	}

	cons, err := st.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          consumer.Name,
		Durable:       consumer.Name,
		FilterSubject: consumer.FilterSubject,
		AckWait:       consumer.AckWait,
		MaxDeliver:    consumer.MaxDeliver,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("create/update consumer %s: %w", consumer.Name, err)
	}

	return &PullConsumer{conn: conn, stream: st, consumer: cons}, nil
}

// FetchBatch implements messaging.Consumer. It waits until n messages
// have arrived, the fetch request expires, or ctx is done.
func (c *PullConsumer) FetchBatch(ctx context.Context, n int) ([]messaging.InboundMessage, error) {
	batch, err := c.consumer.Fetch(n, jetstream.FetchContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("fetch batch: %w", err)
	}

	var out []messaging.InboundMessage
	for msg := range batch.Messages() {
		out = append(out, &inboundMessage{msg: msg})
	}
	if err := batch.Error(); err != nil {
		return out, fmt.Errorf("fetch batch: %w", err)
	}

	return out, nil
}

// Close implements messaging.Consumer.
func (c *PullConsumer) Close() error { return nil }

// inboundMessage adapts a jetstream.Msg to messaging.InboundMessage.
type inboundMessage struct {
	msg jetstream.Msg
}

func (m *inboundMessage) Data() []byte { return m.msg.Data() }
func (m *inboundMessage) Ack() error   { return m.msg.Ack() }
func (m *inboundMessage) Nak() error   { return m.msg.Nak() }
