package timeline

import (
	"math/rand"
	"testing"
	"time"

	"github.com/lalith-99/huddle/internal/dedup"
	"github.com/lalith-99/huddle/internal/view"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func msg(id int64, offset time.Duration) view.Message {
	return view.Message{ID: id, Content: "m", CreatedAt: base.Add(offset)}
}

func keys(items []view.Message) []int64 {
	out := make([]int64, len(items))
	for i, m := range items {
		out[i] = m.ID
	}
	return out
}

func TestTimeline_LocalAppendThenEcho(t *testing.T) {
	tl := New[view.Message](nil)

	assert.True(t, tl.Upsert(msg(1, 0)), "optimistic append renders")
	assert.False(t, tl.Insert(msg(1, 0)), "echo is suppressed")
	assert.Equal(t, 1, tl.Len())
}

func TestTimeline_EchoThenLocalAppend(t *testing.T) {
	tl := New[view.Message](nil)

	echo := msg(1, 0)
	assert.True(t, tl.Insert(echo))

	local := msg(1, 0)
	local.HasAttachments = true
	assert.False(t, tl.Upsert(local), "already listed")

	got, ok := tl.Get(1)
	require.True(t, ok)
	assert.True(t, got.HasAttachments, "local view replaces the echo")
	assert.Equal(t, 1, tl.Len())
}

func TestTimeline_NoDuplicateRender(t *testing.T) {
	// Any mix of echoes and local appends over k ids renders k entries.
	rng := rand.New(rand.NewSource(1))
	const k = 20

	for round := 0; round < 50; round++ {
		tl := New[view.Message](nil)
		for i := 0; i < 200; i++ {
			id := int64(rng.Intn(k))
			m := msg(id, time.Duration(id)*time.Second)
			if rng.Intn(2) == 0 {
				tl.Insert(m)
			} else {
				tl.Upsert(m)
			}
		}
		for id := int64(0); id < k; id++ {
			tl.Insert(msg(id, time.Duration(id)*time.Second))
		}
		assert.Equal(t, k, tl.Len())
	}
}

func TestTimeline_OrderIndependentOfArrival(t *testing.T) {
	tl := New[view.Message](nil)

	tl.Insert(msg(2, 5*time.Second))
	tl.Insert(msg(1, 1*time.Second))

	assert.Equal(t, []int64{1, 2}, keys(tl.Items()))
	assert.Equal(t, 0, tl.IndexOf(1))
	assert.Equal(t, 1, tl.IndexOf(2))
	assert.Equal(t, -1, tl.IndexOf(99))
}

func TestTimeline_OrderShuffled(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	entries := make([]view.Message, 30)
	for i := range entries {
		entries[i] = msg(int64(i+1), time.Duration(rng.Intn(1000))*time.Millisecond)
	}

	tl := New[view.Message](nil)
	for _, i := range rng.Perm(len(entries)) {
		tl.Insert(entries[i])
	}

	items := tl.Items()
	for i := 1; i < len(items); i++ {
		assert.False(t, items[i].CreatedAt.Before(items[i-1].CreatedAt))
	}
}

func TestTimeline_EqualTimestampsTieBreakOnID(t *testing.T) {
	tl := New[view.Message](nil)
	tl.Insert(msg(9, 0))
	tl.Insert(msg(3, 0))

	assert.Equal(t, []int64{3, 9}, keys(tl.Items()))
}

func TestTimeline_RemoveAllowsReinsert(t *testing.T) {
	seen := dedup.NewSeenCache()
	tl := New[view.Message](seen)

	tl.Insert(msg(1, 0))
	assert.True(t, tl.Remove(1))
	assert.False(t, seen.IsSeen(1))
	assert.False(t, tl.Remove(1))
	assert.True(t, tl.Insert(msg(1, 0)))
}

func TestTimeline_ReplaceAndUpdate(t *testing.T) {
	tl := New[view.Post](nil)
	tl.Insert(view.Post{ID: 1, CreatedAt: base})

	tl.Replace([]view.Post{
		{ID: 2, CreatedAt: base.Add(time.Second)},
		{ID: 3, CreatedAt: base},
	})
	assert.Equal(t, 2, tl.Len())
	_, ok := tl.Get(1)
	assert.False(t, ok)

	assert.False(t, tl.Insert(view.Post{ID: 2}), "replaced ids count as seen")
	assert.True(t, tl.Update(view.Post{ID: 2, LikeCount: 4, CreatedAt: base.Add(time.Second)}))
	assert.False(t, tl.Update(view.Post{ID: 42}))

	got, _ := tl.Get(2)
	assert.Equal(t, 4, got.LikeCount)
}

func TestTimeline_ReconcileKeepsAppendsMadeDuringFetch(t *testing.T) {
	tl := New[view.Message](nil)
	tl.Upsert(msg(1, 1*time.Second))
	tl.Upsert(msg(2, 2*time.Second)) // deleted while disconnected

	gen := tl.BeginRefetch()
	tl.Upsert(msg(9, 9*time.Second)) // written after the store was read

	tl.Reconcile(gen, []view.Message{msg(1, time.Second), msg(3, 3*time.Second)})

	assert.Equal(t, []int64{1, 3, 9}, keys(tl.Items()))
	assert.True(t, tl.Insert(msg(2, 2*time.Second)), "dropped id renders again if it reappears")
	assert.False(t, tl.Insert(msg(3, 3*time.Second)))
}

func TestTimeline_ReconcileDropsDeletedNewest(t *testing.T) {
	tl := New[view.Message](nil)
	tl.Insert(msg(1, 1*time.Second))
	tl.Upsert(msg(2, 2*time.Second))

	tl.Reconcile(tl.BeginRefetch(), []view.Message{msg(1, time.Second)})

	assert.Equal(t, []int64{1}, keys(tl.Items()))
}

func TestTimeline_ReconcileEmptyFetchClearsList(t *testing.T) {
	tl := New[view.Message](nil)
	tl.Upsert(msg(5, 5*time.Second))

	tl.Reconcile(tl.BeginRefetch(), nil)

	assert.Empty(t, tl.Items())
}

func TestTimeline_ReconcileConfirmedAppendIsNoLongerPending(t *testing.T) {
	tl := New[view.Message](nil)

	first := tl.BeginRefetch()
	tl.Upsert(msg(4, 4*time.Second))
	tl.Reconcile(first, []view.Message{msg(4, 4*time.Second)})

	// Deleted before the next refetch: nothing protects it any more.
	tl.Reconcile(tl.BeginRefetch(), nil)

	assert.Empty(t, tl.Items())
}

func TestTimeline_OverlappingRefetches(t *testing.T) {
	tl := New[view.Message](nil)

	older := tl.BeginRefetch()
	newer := tl.BeginRefetch()
	tl.Upsert(msg(7, 7*time.Second))

	tl.Reconcile(older, nil)
	assert.Equal(t, []int64{7}, keys(tl.Items()))

	tl.Reconcile(newer, []view.Message{msg(7, 7*time.Second)})
	assert.Equal(t, []int64{7}, keys(tl.Items()))
}
