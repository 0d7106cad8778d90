package sim

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkQueue_DrainRunsInOrder(t *testing.T) {
	q := NewWorkQueue(nil)
	var got []int
	for i := 0; i < 5; i++ {
		i := i
		q.Enqueue("a", func() { got = append(got, i) })
	}

	assert.Equal(t, 5, q.Drain())
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
	assert.Equal(t, 0, q.Len())
}

func TestWorkQueue_EnqueueDuringDrainRunsNextTime(t *testing.T) {
	q := NewWorkQueue(nil)
	ran := 0
	q.Enqueue("a", func() {
		ran++
		q.Enqueue("a", func() { ran++ })
	})

	assert.Equal(t, 1, q.Drain())
	assert.Equal(t, 1, ran)
	assert.Equal(t, 1, q.Len())

	assert.Equal(t, 1, q.Drain())
	assert.Equal(t, 2, ran)
}

func TestWorkQueue_Discard(t *testing.T) {
	q := NewWorkQueue(nil)
	var got []string
	q.Enqueue("a", func() { got = append(got, "a1") })
	q.Enqueue("b", func() { got = append(got, "b1") })
	q.Enqueue("a", func() { got = append(got, "a2") })

	assert.Equal(t, 2, q.Discard("a"))
	q.Drain()
	assert.Equal(t, []string{"b1"}, got)
}

func TestWorkQueue_DiscardDuringDrain(t *testing.T) {
	q := NewWorkQueue(nil)
	var got []string
	q.Enqueue("a", func() {
		got = append(got, "a1")
		q.Discard("b")
	})
	q.Enqueue("b", func() { got = append(got, "b1") })

	q.Drain()
	assert.Equal(t, []string{"a1"}, got)
}

func TestWorkQueue_PanicDoesNotStopDrain(t *testing.T) {
	q := NewWorkQueue(nil)
	ran := false
	q.Enqueue("a", func() { panic("boom") })
	q.Enqueue("a", func() { ran = true })

	require.NotPanics(t, func() { q.Drain() })
	assert.True(t, ran)
}

func TestWorkQueue_ConcurrentEnqueue(t *testing.T) {
	q := NewWorkQueue(nil)
	var wg sync.WaitGroup
	var mu sync.Mutex
	count := 0
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				q.Enqueue("x", func() {
					mu.Lock()
					count++
					mu.Unlock()
				})
			}
		}()
	}
	wg.Wait()

	q.Drain()
	assert.Equal(t, 800, count)
}
