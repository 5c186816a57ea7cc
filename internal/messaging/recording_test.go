package messaging

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordingPublisher_CapturesCallsInOrder(t *testing.T) {
	pub := NewRecordingPublisher()

	id1, err := pub.Publish(context.Background(), "rp.notify.C1", []byte("a"))
	require.NoError(t, err)
	id2, err := pub.Publish(context.Background(), "rp.notify.C2", []byte("b"))
	require.NoError(t, err)

	assert.NotEqual(t, id1, id2)
	assert.Equal(t, []string{"rp.notify.C1", "rp.notify.C2"}, pub.Topics())

	body, err := pub.BodyFor("rp.notify.C1")
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), body)
}

func TestRecordingPublisher_BodyFor_UnknownTopic(t *testing.T) {
	pub := NewRecordingPublisher()

	_, err := pub.BodyFor("rp.notify.missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRecordingPublisher_FailOn_OnlyFailsMatchingTopic(t *testing.T) {
	pub := NewRecordingPublisher()
	pub.FailOn("rp.notify.C2")

	_, err := pub.Publish(context.Background(), "rp.notify.C1", []byte("a"))
	require.NoError(t, err)

	_, err = pub.Publish(context.Background(), "rp.notify.C2", []byte("b"))
	assert.Error(t, err)

	assert.Equal(t, []string{"rp.notify.C1"}, pub.Topics())
}

func TestRecordingPublisher_BodyCopiedNotAliased(t *testing.T) {
	pub := NewRecordingPublisher()

	body := []byte("original")
	_, err := pub.Publish(context.Background(), "rp.notify.C1", body)
	require.NoError(t, err)

	body[0] = 'X'

	got, err := pub.BodyFor("rp.notify.C1")
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), got)
}
