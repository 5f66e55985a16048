package schedule

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Task is a handle to a scheduled callback.
type Task struct {
	mu        sync.Mutex
	cancelled bool
	stop      func()
}

// Cancel prevents future firings. It is safe to call more than once and from
// inside the task's own callback. A firing that already passed its
// cancellation check may still be running; owners compare the task they
// receive against the one they hold to discard it.
func (t *Task) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancelled {
		return
	}
	t.cancelled = true
	if t.stop != nil {
		t.stop()
	}
}

// Cancelled reports whether Cancel was called.
func (t *Task) Cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

func (t *Task) setStop(stop func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancelled {
		stop()
		return
	}
	t.stop = stop
}

func (t *Task) fire(fn func(*Task)) {
	if t.Cancelled() {
		return
	}
	fn(t)
}

// Scheduler runs callbacks after a delay or periodically.
type Scheduler interface {
	Now() time.Time
	After(d time.Duration, fn func(*Task)) *Task
	Every(d time.Duration, fn func(*Task)) *Task
}

// Real is a Scheduler backed by the runtime timers.
type Real struct{}

var wallClock = clockwork.NewRealClock()

// Now returns the wall clock.
func (Real) Now() time.Time {
	return wallClock.Now()
}

// After runs fn once after d on its own goroutine.
func (Real) After(d time.Duration, fn func(*Task)) *Task {
	t := &Task{}
	timer := wallClock.AfterFunc(d, func() { t.fire(fn) })
	t.setStop(func() { timer.Stop() })
	return t
}

// Every runs fn every d until the task is cancelled. Firings are sequential.
func (Real) Every(d time.Duration, fn func(*Task)) *Task {
	t := &Task{}
	ticker := wallClock.NewTicker(d)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.Chan():
				t.fire(fn)
			case <-done:
				return
			}
		}
	}()

	t.setStop(func() {
		ticker.Stop()
		close(done)
	})
	return t
}
