// Package scheduler re-runs detection after the page has been quiet for a
// debounce window.
//
// Every Notify (a node insertion) restarts the window; the callback runs
// once the window expires without a new notification. Stop tears the loop
// and its pending timer down for good, until Reset re-arms the scheduler.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrStopped is returned by Start after Stop until Reset is called.
var ErrStopped = errors.New("scheduler: stopped")

// Config controls the debounce behaviour.
type Config struct {
	// Window is the quiet time required before a run. Default: 400ms.
	Window time.Duration
}

func (c *Config) defaults() {
	if c.Window <= 0 {
		c.Window = 400 * time.Millisecond
	}
}

// RunFunc is the debounced work. coalesced is the number of notifications
// the run answers.
type RunFunc func(ctx context.Context, coalesced int)

// Timer is the part of *time.Timer the scheduler uses.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
}

// Clock creates timers. Tests replace it to fire windows by hand.
type Clock interface {
	NewTimer(d time.Duration) Timer
}

type realClock struct{}

type realTimer struct{ t *time.Timer }

func (realClock) NewTimer(d time.Duration) Timer { return realTimer{time.NewTimer(d)} }
func (r realTimer) C() <-chan time.Time        { return r.t.C }
func (r realTimer) Stop() bool                 { return r.t.Stop() }

// Scheduler is a single-shot debounced trigger.
type Scheduler struct {
	cfg    Config
	run    RunFunc
	clock  Clock
	logger *slog.Logger

	mu      sync.Mutex
	notify  chan struct{}
	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool
}

// New creates a Scheduler. It does nothing until Start.
func New(cfg Config, run RunFunc, logger *slog.Logger) *Scheduler {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{cfg: cfg, run: run, clock: realClock{}, logger: logger}
}

// SetClock replaces the timer source. Call before Start.
func (s *Scheduler) SetClock(c Clock) {
	s.mu.Lock()
	s.clock = c
	s.mu.Unlock()
}

// Start launches the loop. Starting a running scheduler is a no-op. The
// loop ends when ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	if s.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.notify = make(chan struct{}, 1)
	s.done = make(chan struct{})
	go s.loop(ctx, s.notify, s.done, s.clock)
	s.logger.Debug("scheduler: started", "window", s.cfg.Window)
	return nil
}

// Notify restarts the debounce window. It never blocks and is ignored while
// the scheduler is not running.
func (s *Scheduler) Notify() {
	s.mu.Lock()
	ch := s.notify
	s.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- struct{}{}:
	default:
	}
}

// Stop ends the loop, drops the pending window and waits for a run in
// progress to return. Start fails until Reset.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.notify, s.done = nil, nil, nil
	s.stopped = true
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
		s.logger.Debug("scheduler: stopped")
	}
}

// Reset stops the scheduler if needed and makes it startable again.
func (s *Scheduler) Reset() {
	s.Stop()
	s.mu.Lock()
	s.stopped = false
	s.mu.Unlock()
}

// Running reports whether the loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

func (s *Scheduler) loop(ctx context.Context, notify <-chan struct{}, done chan<- struct{}, clock Clock) {
	defer close(done)

	var timer Timer
	var timerC <-chan time.Time
	pending := 0

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case <-notify:
			if timer != nil {
				timer.Stop()
			}
			timer = clock.NewTimer(s.cfg.Window)
			timerC = timer.C()
			pending++

		case <-timerC:
			n := pending
			timer, timerC, pending = nil, nil, 0
			if ctx.Err() != nil {
				return
			}
			s.run(ctx, n)
		}
	}
}
