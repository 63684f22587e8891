package realtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBroker_FanOut(t *testing.T) {
	b := NewMemoryBroker(4)
	ctx := context.Background()

	s1, err := b.Subscribe(ctx, "t")
	require.NoError(t, err)
	s2, err := b.Subscribe(ctx, "t")
	require.NoError(t, err)
	other, err := b.Subscribe(ctx, "other")
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "t", Event{Op: OpInsert, RowID: 1}))

	assert.Equal(t, int64(1), (<-s1.Events()).RowID)
	assert.Equal(t, int64(1), (<-s2.Events()).RowID)
	assert.Len(t, other.Events(), 0)
}

func TestMemoryBroker_SlowConsumerIsDropped(t *testing.T) {
	b := NewMemoryBroker(1)
	ctx := context.Background()

	s, err := b.Subscribe(ctx, "t")
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "t", Event{RowID: 1}))
	require.NoError(t, b.Publish(ctx, "t", Event{RowID: 2}))

	ev, ok := <-s.Events()
	require.True(t, ok)
	assert.Equal(t, int64(1), ev.RowID)

	_, ok = <-s.Events()
	assert.False(t, ok)
	assert.ErrorIs(t, s.Err(), ErrSlowConsumer)
	assert.Equal(t, 0, b.Subscribers("t"))
}

func TestMemoryBroker_CloseAndDisconnect(t *testing.T) {
	b := NewMemoryBroker(4)
	ctx := context.Background()

	s, err := b.Subscribe(ctx, "t")
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.NoError(t, s.Err())

	s2, err := b.Subscribe(ctx, "t")
	require.NoError(t, err)
	b.Disconnect("t")
	_, ok := <-s2.Events()
	assert.False(t, ok)
	assert.ErrorIs(t, s2.Err(), ErrStreamLost)

	require.NoError(t, b.Close())
	_, err = b.Subscribe(ctx, "t")
	assert.ErrorIs(t, err, ErrBrokerClosed)
}
