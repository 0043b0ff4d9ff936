package worker

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClock_Monotonic(t *testing.T) {
	c := NewClock()
	assert.Equal(t, int64(0), c.Current())
	assert.Equal(t, int64(1), c.Next())
	assert.Equal(t, int64(2), c.Next())
	assert.Equal(t, int64(2), c.Current())
}

func TestClock_ResumeOnlyMovesForward(t *testing.T) {
	c := NewClock()
	c.Resume(41)
	assert.Equal(t, int64(42), c.Next())

	c.Resume(10)
	assert.Equal(t, int64(43), c.Next(), "resuming behind the clock is a no-op")
}

func TestClock_ConcurrentNextIsUnique(t *testing.T) {
	c := NewClock()
	const n = 100

	var mu sync.Mutex
	seen := make(map[int64]bool, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v := c.Next()
			mu.Lock()
			seen[v] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, n)
	assert.Equal(t, int64(n), c.Current())
}

func TestClock_ConcurrentResumeKeepsMaximum(t *testing.T) {
	c := NewClock()
	var wg sync.WaitGroup
	for i := int64(1); i <= 50; i++ {
		wg.Add(1)
		go func(after int64) {
			defer wg.Done()
			c.Resume(after)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int64(50), c.Current())
}
