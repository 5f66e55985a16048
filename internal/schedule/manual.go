package schedule

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type manualEntry struct {
	task  *Task
	at    time.Time
	every time.Duration
	fn    func(*Task)
	seq   int

	mu      sync.Mutex
	timer   clockwork.Timer
	ready   chan struct{}
	stopped chan struct{}
}

func (e *manualEntry) arm(clock clockwork.Clock, d time.Duration) {
	ready := make(chan struct{})
	e.mu.Lock()
	e.ready = ready
	e.timer = clock.AfterFunc(d, func() { close(ready) })
	e.mu.Unlock()
}

func (e *manualEntry) stop() {
	e.mu.Lock()
	e.timer.Stop()
	e.mu.Unlock()
	close(e.stopped)
}

// Manual is a deterministic Scheduler for tests, driven by a clockwork fake
// clock. Time only moves through Advance.
type Manual struct {
	clock   clockwork.FakeClock
	mu      sync.Mutex
	entries []*manualEntry
	seq     int
}

// NewManual creates a manual scheduler starting at now.
func NewManual(now time.Time) *Manual {
	return &Manual{clock: clockwork.NewFakeClockAt(now)}
}

// Now returns the manual clock.
func (m *Manual) Now() time.Time {
	return m.clock.Now()
}

// After schedules fn at Now()+d.
func (m *Manual) After(d time.Duration, fn func(*Task)) *Task {
	return m.add(d, 0, fn)
}

// Every schedules fn at every multiple of d from Now().
func (m *Manual) Every(d time.Duration, fn func(*Task)) *Task {
	return m.add(d, d, fn)
}

func (m *Manual) add(d, every time.Duration, fn func(*Task)) *Task {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	e := &manualEntry{
		task:    &Task{},
		at:      m.clock.Now().Add(d),
		every:   every,
		fn:      fn,
		seq:     m.seq,
		stopped: make(chan struct{}),
	}
	e.arm(m.clock, d)
	e.task.setStop(e.stop)
	m.entries = append(m.entries, e)
	return e.task
}

// Advance moves the clock forward by d, firing due callbacks in time order.
// Tasks due at the same instant fire in the order they were scheduled.
// Callbacks run on the caller's goroutine without the scheduler lock held and
// may schedule or cancel tasks.
func (m *Manual) Advance(d time.Duration) {
	target := m.clock.Now().Add(d)

	for {
		m.mu.Lock()
		e := m.nextDueLocked(target)
		if e == nil {
			if rest := target.Sub(m.clock.Now()); rest > 0 {
				m.clock.Advance(rest)
			}
			m.mu.Unlock()
			return
		}
		m.clock.Advance(e.at.Sub(m.clock.Now()))
		e.mu.Lock()
		ready := e.ready
		e.mu.Unlock()
		m.mu.Unlock()

		select {
		case <-ready:
		case <-e.stopped:
			continue
		}

		m.mu.Lock()
		if e.every > 0 {
			e.at = e.at.Add(e.every)
			e.arm(m.clock, e.every)
		} else {
			m.removeLocked(e)
		}
		m.mu.Unlock()

		e.task.fire(e.fn)
	}
}

func (m *Manual) nextDueLocked(target time.Time) *manualEntry {
	var next *manualEntry
	for _, e := range m.entries {
		if e.task.Cancelled() {
			continue
		}
		if e.at.After(target) {
			continue
		}
		if next == nil || e.at.Before(next.at) || (e.at.Equal(next.at) && e.seq < next.seq) {
			next = e
		}
	}
	return next
}

func (m *Manual) removeLocked(target *manualEntry) {
	kept := m.entries[:0]
	for _, e := range m.entries {
		if e != target {
			kept = append(kept, e)
		}
	}
	m.entries = kept
}

// Pending returns the number of tasks that can still fire.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, e := range m.entries {
		if !e.task.Cancelled() {
			n++
		}
	}
	return n
}

// FireCancelled invokes the callbacks of every cancelled task, bypassing the
// cancellation check, as a timer that fired just before teardown would.
func (m *Manual) FireCancelled() int {
	m.mu.Lock()
	var late []*manualEntry
	kept := m.entries[:0]
	for _, e := range m.entries {
		if e.task.Cancelled() {
			late = append(late, e)
			continue
		}
		kept = append(kept, e)
	}
	m.entries = kept
	m.mu.Unlock()

	for _, e := range late {
		e.fn(e.task)
	}
	return len(late)
}
