// Package autolock locks an idle surface after the configured delay.
package autolock

import (
	"context"
	"sync"
	"time"

	"github.com/forest6511/applockctl/pkg/applock"
)

// Locker is the part of the lock manager the scheduler drives.
type Locker interface {
	Snapshot() applock.State
	Lock()
}

// defaultInterval is how often idle time is checked. Granularity, not
// precision: a lock may fire up to one interval late.
const defaultInterval = 10 * time.Second

// Scheduler watches user activity and locks the target once it has been
// idle longer than the configured auto-lock delay. A zero delay means
// the surface locks only on explicit Background, not on idle.
type Scheduler struct {
	target   Locker
	interval time.Duration
	now      func() time.Time

	mu           sync.Mutex
	lastActivity time.Time
	started      bool

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithInterval overrides the idle check granularity.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// New builds a Scheduler. Call Start to begin watching.
func New(target Locker, opts ...Option) *Scheduler {
	s := &Scheduler{
		target:   target,
		interval: defaultInterval,
		now:      time.Now,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.lastActivity = s.now()
	return s
}

// Start launches the watcher goroutine. It exits when ctx is cancelled
// or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.check()
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			}
		}
	}()
}

// Stop halts the watcher and waits for it to exit. A no-op if Start
// was never called.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	s.stopOnce.Do(func() { close(s.stop) })
	if started {
		<-s.done
	}
}

// Touch records user activity, resetting the idle timer.
func (s *Scheduler) Touch() {
	s.mu.Lock()
	s.lastActivity = s.now()
	s.mu.Unlock()
}

// Background reports that the surface left the foreground. A zero
// auto-lock delay locks immediately; otherwise the idle timer keeps
// running from the last activity.
func (s *Scheduler) Background() {
	st := s.target.Snapshot()
	if st.Enabled && !st.IsLocked && st.AutoLockTimeMs == 0 {
		s.target.Lock()
	}
}

func (s *Scheduler) check() {
	st := s.target.Snapshot()
	if !st.Enabled || st.IsLocked || st.AutoLockTimeMs <= 0 {
		return
	}

	s.mu.Lock()
	idle := s.now().Sub(s.lastActivity)
	s.mu.Unlock()

	if idle >= time.Duration(st.AutoLockTimeMs)*time.Millisecond {
		s.target.Lock()
	}
}
