package drafts

import (
	"sync"
	"time"
)

// Timer is the subset of *time.Timer the scheduler needs.
type Timer interface {
	Stop() bool
}

// Clock abstracts timer creation so schedulers can run on a fake clock in tests.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// RealClock schedules on wall-clock time.
var RealClock Clock = realClock{}

// Scheduler is a single-slot delayed task queue: scheduling a task cancels the
// pending one, so a burst of calls runs only the last task once the burst has
// been quiet for the delay.
type Scheduler struct {
	mu      sync.Mutex
	clock   Clock
	delay   time.Duration
	timer   Timer
	seq     uint64
	stopped bool
}

func NewScheduler(clock Clock, delay time.Duration) *Scheduler {
	if clock == nil {
		clock = RealClock
	}
	return &Scheduler{clock: clock, delay: delay}
}

// Schedule replaces any pending task with task.
func (s *Scheduler) Schedule(task func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.seq++
	seq := s.seq
	s.timer = s.clock.AfterFunc(s.delay, func() {
		s.mu.Lock()
		current := seq == s.seq && !s.stopped
		if current {
			s.timer = nil
		}
		s.mu.Unlock()
		if current {
			task()
		}
	})
}

// Pending reports whether a task is waiting to fire.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

// Cancel drops the pending task and reports whether there was one.
func (s *Scheduler) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelLocked()
}

// Stop cancels the pending task and rejects future ones.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
	s.stopped = true
}

// cancelLocked reports whether a task was dropped. Bumping seq also disarms a
// timer that already fired but has not taken the lock yet.
func (s *Scheduler) cancelLocked() bool {
	if s.timer == nil {
		return false
	}
	s.seq++
	s.timer.Stop()
	s.timer = nil
	return true
}
