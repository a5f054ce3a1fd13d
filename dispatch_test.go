package courier

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDispatcher_FIFO(t *testing.T) {
	d := newDispatcher(discardLogger())

	var mu sync.Mutex
	var got []int
	for i := 0; i < 100; i++ {
		assert.True(t, d.Enqueue(func() {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, i)
		}))
	}
	d.Close()

	want := make([]int, 100)
	for i := range want {
		want[i] = i
	}
	assert.Equal(t, want, got)
}

func TestDispatcher_EnqueueFromCallback(t *testing.T) {
	d := newDispatcher(discardLogger())

	done := make(chan struct{})
	d.Enqueue(func() {
		d.Enqueue(func() { close(done) })
	})
	waitDone(t, done)
	d.Close()
}

func TestDispatcher_SurvivesPanic(t *testing.T) {
	d := newDispatcher(discardLogger())

	ran := false
	d.Enqueue(func() { panic("callback bug") })
	d.Enqueue(func() { ran = true })
	d.Close()

	assert.True(t, ran)
}

func TestDispatcher_RejectsAfterClose(t *testing.T) {
	d := newDispatcher(discardLogger())
	d.Close()
	d.Close()

	assert.False(t, d.Enqueue(func() {}))
}
