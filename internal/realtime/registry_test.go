package realtime

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_OpenIsIdempotentPerScope(t *testing.T) {
	b := NewMemoryBroker(8)
	r := NewRegistry(newTestClient(b))
	scope := ChannelScope(uuid.New())
	noop := func(context.Context, Event) {}

	bindings := []Binding{
		{Table: TableMessages, Handler: noop},
		{Table: TableReactions, Handler: noop},
	}

	first, existed, err := r.Open(context.Background(), scope, bindings)
	require.NoError(t, err)
	assert.False(t, existed)

	second, existed, err := r.Open(context.Background(), scope, bindings)
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Same(t, first, second)

	assert.Equal(t, 1, b.Subscribers(Filter{Table: TableMessages, Scope: scope}.Topic()))
	assert.Equal(t, 1, b.Subscribers(Filter{Table: TableReactions, Scope: scope}.Topic()))
}

func TestRegistry_CloseResetsSeenAndUnsubscribes(t *testing.T) {
	b := NewMemoryBroker(8)
	r := NewRegistry(newTestClient(b))
	scope := DirectScope(uuid.New())

	entry, _, err := r.Open(context.Background(), scope, []Binding{
		{Table: TableMessages, Handler: func(context.Context, Event) {}},
	})
	require.NoError(t, err)
	entry.Seen.MarkSeen(1)

	r.Close(scope)
	r.Close(scope)

	assert.False(t, entry.Seen.IsSeen(1))
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 0, b.Subscribers(Filter{Table: TableMessages, Scope: scope}.Topic()))
}

func TestRegistry_OpenFailureRollsBack(t *testing.T) {
	b := NewMemoryBroker(8)
	r := NewRegistry(newTestClient(b))
	scope := PostsScope(uuid.New())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := r.Open(ctx, scope, []Binding{
		{Table: TablePosts, Handler: func(context.Context, Event) {}},
	})
	assert.Error(t, err)
	assert.Equal(t, 0, r.Len())
}
