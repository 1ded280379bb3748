package threadlock_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/salesbroker/funnelbroker/pkg/threadlock"
)

func TestLock_SerializesSameThread(t *testing.T) {
	r := threadlock.New()
	id := uuid.New()

	var mu sync.Mutex
	order := make([]int, 0, 2)

	var wg sync.WaitGroup
	wg.Add(2)

	started := make(chan struct{})
	go func() {
		defer wg.Done()
		unlock := r.Lock(id)
		close(started)
		time.Sleep(20 * time.Millisecond)
		mu.Lock()
		order = append(order, 1)
		mu.Unlock()
		unlock()
	}()

	<-started
	go func() {
		defer wg.Done()
		unlock := r.Lock(id)
		mu.Lock()
		order = append(order, 2)
		mu.Unlock()
		unlock()
	}()

	wg.Wait()
	assert.Equal(t, []int{1, 2}, order)
}

func TestLock_DifferentThreadsProceedConcurrently(t *testing.T) {
	r := threadlock.New()
	a, b := uuid.New(), uuid.New()

	var inFlight int32
	var maxInFlight int32
	var wg sync.WaitGroup

	run := func(id uuid.UUID) {
		defer wg.Done()
		unlock := r.Lock(id)
		defer unlock()
		n := atomic.AddInt32(&inFlight, 1)
		for {
			old := atomic.LoadInt32(&maxInFlight)
			if n <= old || atomic.CompareAndSwapInt32(&maxInFlight, old, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
	}

	wg.Add(2)
	go run(a)
	go run(b)
	wg.Wait()

	assert.Equal(t, int32(2), maxInFlight, "distinct threads should run concurrently")
}

func TestLock_ReleaseAllowsReacquisition(t *testing.T) {
	r := threadlock.New()
	id := uuid.New()

	unlock := r.Lock(id)
	unlock()

	done := make(chan struct{})
	go func() {
		unlock := r.Lock(id)
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second Lock did not complete after release")
	}
}
