package littlewebserver

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWorkerQueueControllerValidation(t *testing.T) {
	_, err := newWorkerQueueController(0, 10)
	assert.Error(t, err, "global max of 0 is forbidden")

	_, err = newWorkerQueueController(10, 0)
	assert.Error(t, err, "request queue max of 0 is forbidden")

	c, err := newWorkerQueueController(-1, -1)
	require.NoError(t, err)
	assert.NotNil(t, c)
}

func TestRegisterQueueRejectsBadMax(t *testing.T) {
	c, err := newWorkerQueueController(-1, -1)
	require.NoError(t, err)

	assert.Error(t, c.registerQueue("uploads", 0))
	assert.Error(t, c.registerQueue("uploads", -2))
	assert.NoError(t, c.registerQueue("uploads", 4))
	// Re-registering the same name is a no-op, not an error.
	assert.NoError(t, c.registerQueue("uploads", 99))
}

// TestAdmissionRespectsQueueCap asserts the invariant that at most max
// tasks for a named queue ever run concurrently, regardless of how many are
// submitted at once.
func TestAdmissionRespectsQueueCap(t *testing.T) {
	c, err := newWorkerQueueController(-1, -1)
	require.NoError(t, err)
	require.NoError(t, c.registerQueue("limited", 2))

	const submitted = 20
	var current, maxSeen int64
	var wg sync.WaitGroup
	wg.Add(submitted)

	for i := 0; i < submitted; i++ {
		ok := c.submit("limited", func() {
			defer wg.Done()
			n := atomic.AddInt64(&current, 1)
			for {
				seen := atomic.LoadInt64(&maxSeen)
				if n <= seen || atomic.CompareAndSwapInt64(&maxSeen, seen, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt64(&current, -1)
		})
		require.True(t, ok)
	}

	wg.Wait()
	assert.LessOrEqual(t, atomic.LoadInt64(&maxSeen), int64(2))
}

func TestAdmissionRespectsGlobalCap(t *testing.T) {
	c, err := newWorkerQueueController(2, -1)
	require.NoError(t, err)
	require.NoError(t, c.registerQueue("a", -1))
	require.NoError(t, c.registerQueue("b", -1))

	var current, maxSeen int64
	var wg sync.WaitGroup
	wg.Add(10)

	submitTo := func(name string) {
		ok := c.submit(name, func() {
			defer wg.Done()
			n := atomic.AddInt64(&current, 1)
			for {
				seen := atomic.LoadInt64(&maxSeen)
				if n <= seen || atomic.CompareAndSwapInt64(&maxSeen, seen, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt64(&current, -1)
		})
		require.True(t, ok)
	}

	for i := 0; i < 5; i++ {
		submitTo("a")
		submitTo("b")
	}

	wg.Wait()
	assert.LessOrEqual(t, atomic.LoadInt64(&maxSeen), int64(2))
}

func TestStopUnblocksWaitersAndRejectsSubmit(t *testing.T) {
	c, err := newWorkerQueueController(1, -1)
	require.NoError(t, err)
	require.NoError(t, c.registerQueue("solo", 1))

	release := make(chan struct{})
	started := make(chan struct{})
	ok := c.submit("solo", func() {
		close(started)
		<-release
	})
	require.True(t, ok)
	<-started

	waiterDone := make(chan bool, 1)
	go func() {
		waiterDone <- c.waitForCapacity("solo")
	}()

	// Give the waiter a moment to block on the full queue, then stop.
	time.Sleep(10 * time.Millisecond)
	c.stop()
	close(release)

	select {
	case ok := <-waiterDone:
		assert.False(t, ok, "waitForCapacity must return false once stopping")
	case <-time.After(time.Second):
		t.Fatal("stop() did not unblock a waiter")
	}

	assert.False(t, c.submit("solo", func() {}))
}
