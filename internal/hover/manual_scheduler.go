package hover

import (
	"sync"
	"time"
)

// ManualScheduler is a Scheduler on a virtual clock that only moves when
// Advance is called. Replays and tests use it to control activation timing.
type ManualScheduler struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*manualTimer
}

type manualTimer struct {
	deadline time.Duration
	fn       func()
	stopped  bool
	fired    bool
}

func (t *manualTimer) Stop() bool {
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

func (s *ManualScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	timer := &manualTimer{deadline: s.now + d, fn: fn}
	s.timers = append(s.timers, timer)
	return timer
}

// Advance moves the clock forward by d and runs every timer that came due,
// in deadline order, on the calling goroutine.
func (s *ManualScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	s.now += d
	var due []*manualTimer
	pending := s.timers[:0]
	for _, timer := range s.timers {
		switch {
		case timer.stopped || timer.fired:
		case timer.deadline <= s.now:
			timer.fired = true
			due = append(due, timer)
		default:
			pending = append(pending, timer)
		}
	}
	s.timers = pending
	s.mu.Unlock()

	for i := 1; i < len(due); i++ {
		for j := i; j > 0 && due[j].deadline < due[j-1].deadline; j-- {
			due[j], due[j-1] = due[j-1], due[j]
		}
	}
	for _, timer := range due {
		timer.fn()
	}
}

// Now returns the virtual time elapsed since the scheduler was created.
func (s *ManualScheduler) Now() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}
