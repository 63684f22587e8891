package dedup

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeenCache_MarkAndReset(t *testing.T) {
	c := NewSeenCache()

	assert.False(t, c.IsSeen(1))
	c.MarkSeen(1)
	c.MarkSeen(1)
	assert.True(t, c.IsSeen(1))
	assert.Equal(t, 1, c.Len())

	c.Reset()
	assert.False(t, c.IsSeen(1))
	assert.Equal(t, 0, c.Len())
}

func TestSeenCache_CheckAndMark(t *testing.T) {
	c := NewSeenCache()

	assert.False(t, c.CheckAndMark(7), "first sighting is new")
	assert.True(t, c.CheckAndMark(7), "second sighting is a duplicate")

	c.Forget(7)
	assert.False(t, c.CheckAndMark(7))
}

func TestSeenCache_ConcurrentCheckAndMark(t *testing.T) {
	c := NewSeenCache()

	var wg sync.WaitGroup
	var mu sync.Mutex
	fresh := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !c.CheckAndMark(42) {
				mu.Lock()
				fresh++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, fresh)
}
