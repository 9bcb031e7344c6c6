package dispatcher

import (
	"context"
	"sync"
)

// resizableSemaphore is a counting semaphore whose limit can change
// while goroutines are blocked waiting on it -- the channel-based
// semaphore the teacher's WaveExecutor uses (a fixed-capacity buffered
// channel) cannot be resized once created, and spec.md's dispatcher
// needs num_workers adjustable at runtime via an adjust signal.
type resizableSemaphore struct {
	mu    sync.Mutex
	cond  *sync.Cond
	limit int
	inUse int
}

func newResizableSemaphore(limit int) *resizableSemaphore {
	s := &resizableSemaphore{limit: limit}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// acquire blocks until a permit is available or ctx is done.
func (s *resizableSemaphore) acquire(ctx context.Context) error {
	done := ctx.Done()
	stop := make(chan struct{})
	defer close(stop)
	if done != nil {
		go func() {
			select {
			case <-done:
				s.mu.Lock()
				s.cond.Broadcast()
				s.mu.Unlock()
			case <-stop:
			}
		}()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for s.inUse >= s.limit {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.cond.Wait()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.inUse++
	return nil
}

func (s *resizableSemaphore) release() {
	s.mu.Lock()
	s.inUse--
	s.cond.Signal()
	s.mu.Unlock()
}

// resize changes the permit ceiling and wakes any waiters so they can
// re-check it immediately (growing the limit should free them right
// away rather than waiting for an unrelated release).
func (s *resizableSemaphore) resize(n int) {
	if n <= 0 {
		n = 1
	}
	s.mu.Lock()
	s.limit = n
	s.cond.Broadcast()
	s.mu.Unlock()
}
