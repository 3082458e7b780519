package triage

import (
	"context"
	"log"
	"sync"
	"time"
)

// Recomputer is the subset of Engine behavior the scheduler drives.
type Recomputer interface {
	Recompute(ctx context.Context, reason string) error
}

// Scheduler decides when the engine recomputes. Two rules:
//
//   - debounce floor: consecutive recomputes are at least floor apart, so a
//     burst of notifications collapses into one deferred run
//   - staleness ceiling: with no notifications at all, a recompute still runs
//     every ceiling, keeping waiting-time contributions fresh
//
// A recompute in flight is never interrupted; notifications arriving during
// one queue exactly one follow-up run.
type Scheduler struct {
	engine  Recomputer
	floor   time.Duration
	ceiling time.Duration

	mu            sync.Mutex
	lastRun       time.Time
	running       bool
	pending       *time.Timer
	pendingReason string
	queued        bool
	queuedReason  string

	// now is the clock; replaceable in tests.
	now func() time.Time
}

// NewScheduler constructs a scheduler. Non-positive durations get the
// defaults (2s floor, 60s ceiling).
func NewScheduler(engine Recomputer, floor, ceiling time.Duration) *Scheduler {
	if floor <= 0 {
		floor = 2 * time.Second
	}
	if ceiling <= 0 {
		ceiling = 60 * time.Second
	}
	return &Scheduler{
		engine:  engine,
		floor:   floor,
		ceiling: ceiling,
		now:     time.Now,
	}
}

// Notify signals that a scoring input changed (patient status, capacity,
// settings). Cheap and non-blocking; callers fire-and-forget.
func (s *Scheduler) Notify(ctx context.Context, reason string) {
	// the triggering request may complete long before the recompute runs
	ctx = context.WithoutCancel(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	// already a deferred or queued run coming; coalesce into it, letting the
	// latest reason tag the run
	if s.pending != nil {
		s.pendingReason = reason
		return
	}
	if s.queued {
		s.queuedReason = reason
		return
	}

	elapsed := s.now().Sub(s.lastRun)
	if elapsed < s.floor {
		s.pendingReason = reason
		s.pending = time.AfterFunc(s.floor-elapsed, func() {
			s.firePending(ctx)
		})
		return
	}
	if s.running {
		s.queued = true
		s.queuedReason = reason
		return
	}
	s.startLocked(ctx, reason)
}

// firePending runs when the debounce timer expires.
func (s *Scheduler) firePending(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reason := s.pendingReason
	s.pending = nil
	s.pendingReason = ""
	if s.running {
		s.queued = true
		s.queuedReason = reason
		return
	}
	s.startLocked(ctx, reason)
}

// startLocked launches a recompute. Caller holds s.mu.
func (s *Scheduler) startLocked(ctx context.Context, reason string) {
	s.running = true
	s.lastRun = s.now()
	go func() {
		if err := s.engine.Recompute(ctx, reason); err != nil {
			log.Printf("[triage.scheduler] recompute (%s): %v", reason, err)
		}
		s.finish(ctx)
	}()
}

// finish runs after a recompute completes and drains the queued follow-up,
// honoring the floor between runs.
func (s *Scheduler) finish(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	if !s.queued {
		return
	}
	reason := s.queuedReason
	s.queued = false
	s.queuedReason = ""

	elapsed := s.now().Sub(s.lastRun)
	if elapsed < s.floor {
		if s.pending != nil {
			return
		}
		s.pendingReason = reason
		s.pending = time.AfterFunc(s.floor-elapsed, func() {
			s.firePending(ctx)
		})
		return
	}
	s.startLocked(ctx, reason)
}

// Run enforces the staleness ceiling until ctx is cancelled. The first pass
// recomputes immediately so the queue is populated at startup. Safe to run in
// a goroutine.
func (s *Scheduler) Run(ctx context.Context) error {
	log.Printf("[triage.scheduler] starting (floor=%s, ceiling=%s)", s.floor, s.ceiling)
	defer log.Printf("[triage.scheduler] stopped")

	for {
		s.mu.Lock()
		last := s.lastRun
		s.mu.Unlock()

		var wait time.Duration
		if last.IsZero() {
			wait = 0
		} else {
			wait = time.Until(last.Add(s.ceiling))
			if wait < 0 {
				wait = 0
			}
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.mu.Lock()
			if s.pending != nil {
				s.pending.Stop()
				s.pending = nil
			}
			s.mu.Unlock()
			return ctx.Err()
		case <-timer.C:
		}

		s.mu.Lock()
		// a notification-driven run may have landed while we slept
		if !s.lastRun.IsZero() && s.now().Sub(s.lastRun) < s.ceiling {
			s.mu.Unlock()
			continue
		}
		if s.running {
			// the ceiling is satisfied by the run in flight
			s.lastRun = s.now()
			s.mu.Unlock()
			continue
		}
		s.startLocked(ctx, "scheduled")
		s.mu.Unlock()
	}
}
