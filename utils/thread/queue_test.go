package thread

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueRunsTasksInOrder(t *testing.T) {
	q := NewQueue("order")
	defer q.Close()

	var got []int
	var wg sync.WaitGroup
	wg.Add(100)
	for i := 0; i < 100; i++ {
		i := i
		require.True(t, q.Submit(func() {
			got = append(got, i)
			wg.Done()
		}))
	}
	wg.Wait()

	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestQueueIsCurrent(t *testing.T) {
	q := NewQueue("current")
	defer q.Close()

	assert.False(t, q.IsCurrent())

	var onQueue bool
	require.True(t, q.Sync(func() { onQueue = q.IsCurrent() }))
	assert.True(t, onQueue)
}

func TestQueueSyncFromQueueRunsInline(t *testing.T) {
	q := NewQueue("inline")
	defer q.Close()

	ran := false
	q.Sync(func() {
		q.Sync(func() { ran = true })
	})
	assert.True(t, ran)
}

func TestQueueCloseDrainsPending(t *testing.T) {
	q := NewQueue("drain")

	count := 0
	for i := 0; i < 10; i++ {
		q.Submit(func() { count++ })
	}
	q.Close()

	assert.Equal(t, 10, count)
	assert.False(t, q.Submit(func() {}))
	assert.False(t, q.IsCurrent())

	select {
	case <-q.Done():
	default:
		t.Fatal("queue worker did not exit")
	}
}

func TestQueueExecuteAfterClose(t *testing.T) {
	q := NewQueue("closed")
	q.Close()

	done := make(chan struct{})
	q.Execute(func() { close(done) })
	<-done
}

func TestCloseFromQueueDoesNotDeadlock(t *testing.T) {
	q := NewQueue("self-close")
	q.Submit(func() { q.Close() })
	<-q.Done()
}
