package debounce

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	calls []int
}

func (r *recorder) record(v int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, v)
}

func (r *recorder) get() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.calls...)
}

func TestCallCoalescesBurst(t *testing.T) {
	t.Parallel()

	var r recorder
	d := New(50*time.Millisecond, r.record)

	for i := 1; i <= 5; i++ {
		d.Call(i)
	}
	assert.True(t, d.Pending())

	require.Eventually(t, func() bool { return len(r.get()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []int{5}, r.get(), "runs once with the last argument")

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, []int{5}, r.get())
	assert.False(t, d.Pending())
}

func TestCallSeparateBursts(t *testing.T) {
	t.Parallel()

	var r recorder
	d := New(10*time.Millisecond, r.record)

	d.Call(1)
	require.Eventually(t, func() bool { return len(r.get()) == 1 }, time.Second, time.Millisecond)

	d.Call(2)
	require.Eventually(t, func() bool { return len(r.get()) == 2 }, time.Second, time.Millisecond)

	assert.Equal(t, []int{1, 2}, r.get())
}

func TestStop(t *testing.T) {
	t.Parallel()

	var r recorder
	d := New(20*time.Millisecond, r.record)

	assert.False(t, d.Stop())

	d.Call(1)
	assert.True(t, d.Stop())
	assert.False(t, d.Pending())

	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, r.get())
}

func TestFlush(t *testing.T) {
	t.Parallel()

	var r recorder
	d := New(time.Hour, r.record)

	assert.False(t, d.Flush())

	d.Call(7)
	d.Call(8)
	assert.True(t, d.Flush())
	assert.Equal(t, []int{8}, r.get())
	assert.False(t, d.Pending())
}

func TestStaleTimerDoesNotRun(t *testing.T) {
	t.Parallel()

	var r recorder
	d := New(time.Hour, r.record)

	d.Call(1)
	d.mu.Lock()
	staleGen := d.gen
	d.mu.Unlock()

	d.Call(2)

	// a timer that fired before Stop could take effect
	d.fire(staleGen)
	assert.Empty(t, r.get())
	assert.True(t, d.Pending())
	d.Stop()
}

func TestConcurrentCalls(t *testing.T) {
	t.Parallel()

	var runs atomic.Int32
	d := New(30*time.Millisecond, func(int) { runs.Add(1) })

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Call(i)
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())
}
