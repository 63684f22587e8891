// Package timeline is the rendered list of one scope: entries keyed by id,
// read back in created_at order.
package timeline

import (
	"sort"
	"sync"

	"github.com/lalith-99/huddle/internal/dedup"
	"github.com/lalith-99/huddle/internal/view"
)

// Timeline holds at most one entry per id. Insert suppresses ids the seen
// cache already knows; Upsert replaces in place. Items is always sorted by
// (Timestamp, Key) whatever order entries arrived in.
type Timeline[T view.Entry] struct {
	seen *dedup.SeenCache

	mu    sync.Mutex
	items map[int64]T

	// gen advances each time a refetch starts. local maps ids written by
	// Upsert to the generation they were appended in.
	gen   uint64
	local map[int64]uint64
}

// New returns an empty timeline sharing seen with the scope's registry
// entry. A nil seen gets a private cache.
func New[T view.Entry](seen *dedup.SeenCache) *Timeline[T] {
	if seen == nil {
		seen = dedup.NewSeenCache()
	}
	return &Timeline[T]{seen: seen, items: make(map[int64]T), local: make(map[int64]uint64)}
}

// Insert adds e unless its id was already seen in this scope. It reports
// whether e was added.
func (t *Timeline[T]) Insert(e T) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.seen.CheckAndMark(e.Key()) {
		return false
	}
	t.items[e.Key()] = e
	return true
}

// Upsert stores e under its id whether or not it was seen, and marks it
// seen. It is the local append path: a refetch that started before the
// call keeps e even if its result does not list it yet. It reports whether
// the id was new to the list.
func (t *Timeline[T]) Upsert(e T) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.seen.MarkSeen(e.Key())
	t.local[e.Key()] = t.gen
	_, existed := t.items[e.Key()]
	t.items[e.Key()] = e
	return !existed
}

// Update replaces e only if its id is already listed.
func (t *Timeline[T]) Update(e T) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.items[e.Key()]; !ok {
		return false
	}
	t.items[e.Key()] = e
	return true
}

// Remove drops id and forgets it, so a re-insert of the same id renders.
func (t *Timeline[T]) Remove(id int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, ok := t.items[id]
	delete(t.items, id)
	delete(t.local, id)
	t.seen.Forget(id)
	return ok
}

// Replace swaps the whole list for entries (refetch-and-replace) and marks
// every id seen.
func (t *Timeline[T]) Replace(entries []T) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.items = make(map[int64]T, len(entries))
	t.local = make(map[int64]uint64)
	for _, e := range entries {
		t.items[e.Key()] = e
		t.seen.MarkSeen(e.Key())
	}
}

// BeginRefetch marks the start of a refetch. Call it before reading the
// store and pass the result to Reconcile.
func (t *Timeline[T]) BeginRefetch() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.gen++
	return t.gen
}

// Reconcile applies the result of the refetch started at gen. The result
// becomes the list, plus entries appended locally since gen: the store was
// read before they were written. Everything else missing from entries is
// dropped and forgotten, so deletes missed while disconnected are undone.
func (t *Timeline[T]) Reconcile(gen uint64, entries []T) {
	t.mu.Lock()
	defer t.mu.Unlock()

	next := make(map[int64]T, len(entries))
	for _, e := range entries {
		next[e.Key()] = e
		t.seen.MarkSeen(e.Key())
		delete(t.local, e.Key())
	}
	for id, e := range t.items {
		if _, ok := next[id]; ok {
			continue
		}
		if appended, ok := t.local[id]; ok && appended >= gen {
			next[id] = e
			continue
		}
		delete(t.local, id)
		t.seen.Forget(id)
	}
	t.items = next
}

func (t *Timeline[T]) Get(id int64) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.items[id]
	return e, ok
}

func (t *Timeline[T]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.items)
}

// Items returns the entries oldest first.
func (t *Timeline[T]) Items() []T {
	t.mu.Lock()
	out := make([]T, 0, len(t.items))
	for _, e := range t.items {
		out = append(out, e)
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return Less(out[i], out[j]) })
	return out
}

// IndexOf returns the position id has in Items, or -1.
func (t *Timeline[T]) IndexOf(id int64) int {
	for i, e := range t.Items() {
		if e.Key() == id {
			return i
		}
	}
	return -1
}

// Less orders by timestamp, then id for equal timestamps.
func Less(a, b view.Entry) bool {
	ta, tb := a.Timestamp(), b.Timestamp()
	if !ta.Equal(tb) {
		return ta.Before(tb)
	}
	return a.Key() < b.Key()
}
