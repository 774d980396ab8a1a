// Package schedule fires a task once per day at a configured local time.
// Used to refresh all registered queries so relative-time terms re-resolve.
package schedule

import (
	"sync"
	"time"

	"github.com/percodb/percodb/pkg"
)

// DailyScheduler runs task at hour:min:sec local time, every day, until
// stopped. Idle -> Scheduled -> Fired -> Scheduled (next day); Stop is
// terminal.
type DailyScheduler struct {
	task           func()
	hour, min, sec int
	grace          time.Duration
	now            func() time.Time

	mu       sync.Mutex
	timer    *time.Timer
	stopped  bool
	inflight sync.WaitGroup
}

func New(task func(), hour, min, sec int, grace time.Duration) *DailyScheduler {
	if grace <= 0 {
		grace = 30 * time.Second
	}
	return &DailyScheduler{
		task:  task,
		hour:  hour,
		min:   min,
		sec:   sec,
		grace: grace,
		now:   time.Now,
	}
}

// NextDelay computes the wait until the next occurrence of
// hour:min:sec relative to now. When that instant has already passed
// today, the target is tomorrow at the same time.
func NextDelay(now time.Time, hour, min, sec int) time.Duration {
	target := time.Date(now.Year(), now.Month(), now.Day(), hour, min, sec, 0, now.Location())
	if !target.After(now) {
		target = target.AddDate(0, 0, 1)
	}
	return target.Sub(now)
}

// Start schedules the first firing. Calling Start on a stopped scheduler
// is a no-op.
func (s *DailyScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.timer != nil {
		return
	}
	s.scheduleLocked()
}

func (s *DailyScheduler) scheduleLocked() {
	delay := NextDelay(s.now(), s.hour, s.min, s.sec)
	pkg.InfoLog("next refresh scheduled in", delay.Round(time.Second))
	s.timer = time.AfterFunc(delay, s.fire)
}

func (s *DailyScheduler) fire() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.inflight.Add(1)
	s.mu.Unlock()

	func() {
		defer s.inflight.Done()
		s.task()
	}()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stopped {
		s.scheduleLocked()
	}
}

// Stop cancels any pending firing and blocks until an in-flight task
// completes or the grace period elapses, after which the task is
// abandoned and logged.
func (s *DailyScheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(s.grace):
		pkg.ErrorLog("refresh still running after", s.grace, "- abandoning it")
	}
}
