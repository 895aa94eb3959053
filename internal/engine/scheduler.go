package engine

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

// taskKind distinguishes the four kinds of scheduled work a Scheduler
// dispatches. The three recurring kinds re-arm themselves after firing;
// triggered updates are one-shot, armed by the engine's receive path.
type taskKind uint8

const (
	kindPeriodicUpdate taskKind = iota
	kindRouteTimeout
	kindGarbageCollect
	kindTriggeredUpdate
)

// task is a single scheduled firing, ordered by time then sequence
// number so that same-timestamp tasks still get a stable, deterministic
// order (grounded on the teacher's liveness/scheduler.go event heap).
type task struct {
	when time.Time
	seq  uint64
	kind taskKind
}

type taskHeap []task

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if h[i].when.Equal(h[j].when) {
		return h[i].seq < h[j].seq
	}
	return h[i].when.Before(h[j].when)
}
func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *taskHeap) Push(x any)   { *h = append(*h, x.(task)) }
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// Callbacks are the router-level actions a Scheduler invokes when each
// kind of task fires.
type Callbacks struct {
	PeriodicUpdate  func(now time.Time)
	RouteTimeout    func(now time.Time)
	GarbageCollect  func(now time.Time)
	TriggeredUpdate func(now time.Time)
}

// Scheduler is the timer supervisor (spec.md §4.5): it schedules
// periodic_update, route_timeout, and garbage_collection at a common
// cadence, accepts one-shot triggered-update requests, and stops
// re-arming once end-of-life is set.
//
// The clock is injected (github.com/jonboulle/clockwork) so tests can
// fast-forward ROUTE_TIMEOUT/DELETE_TIMEOUT instead of sleeping 30
// wall-clock seconds per scenario.
type Scheduler struct {
	clock  clockwork.Clock
	period time.Duration
	delay  time.Duration
	cb     Callbacks
	log    *slog.Logger

	mu   sync.Mutex
	q    taskHeap
	seq  uint64
	wake chan struct{}

	endOfLife atomic.Bool
}

// NewScheduler constructs a Scheduler. clock may be nil, in which case
// clockwork.NewRealClock() is used.
func NewScheduler(clock clockwork.Clock, period, triggeredDelay time.Duration, cb Callbacks, log *slog.Logger) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{clock: clock, period: period, delay: triggeredDelay, cb: cb, log: log, wake: make(chan struct{}, 1)}
}

// Start arms the three recurring tasks, each to first fire one period
// from now.
func (s *Scheduler) Start() {
	now := s.clock.Now()
	s.mu.Lock()
	s.push(task{when: now.Add(s.period), kind: kindPeriodicUpdate})
	s.push(task{when: now.Add(s.period), kind: kindRouteTimeout})
	s.push(task{when: now.Add(s.period), kind: kindGarbageCollect})
	s.mu.Unlock()
}

// ScheduleTriggered arms a one-shot triggered-update task TriggeredDelay
// from now and wakes Run so the new deadline is honored. It enqueues on
// every call (only end-of-life refuses): coalescing is the engine's job —
// it tracks the "armed" bit itself and only asks the caller to arm when
// no triggered update is pending, so Scheduler trusts the caller.
func (s *Scheduler) ScheduleTriggered() {
	if s.endOfLife.Load() {
		return
	}
	now := s.clock.Now()
	s.mu.Lock()
	s.push(task{when: now.Add(s.delay), kind: kindTriggeredUpdate})
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// push inserts t into the heap with the next sequence number. Caller
// must hold s.mu.
func (s *Scheduler) push(t task) {
	s.seq++
	t.seq = s.seq
	heap.Push(&s.q, t)
}

// QueueLen returns the number of pending tasks, for metrics.
func (s *Scheduler) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.q)
}

// Stop sets the end-of-life flag: no recurring task re-arms itself after
// this point, and new triggered updates are refused. It does not itself
// cancel Run; the caller cancels the context passed to Run.
func (s *Scheduler) Stop() {
	s.endOfLife.Store(true)
}

// Run executes the dispatch loop until ctx is canceled. It pops due
// tasks, invokes the matching callback, and re-arms the three recurring
// kinds (unless end-of-life has been set).
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Debug("scheduler: run loop started")
	timer := s.clock.NewTimer(s.period)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Debug("scheduler: run loop stopped", "reason", ctx.Err())
			return
		default:
		}

		now := s.clock.Now()
		s.mu.Lock()
		var due *task
		var wait time.Duration
		if s.q.Len() == 0 {
			wait = s.period
		} else if d := s.q[0].when.Sub(now); d > 0 {
			wait = d
		} else {
			t := heap.Pop(&s.q).(task)
			due = &t
		}
		s.mu.Unlock()

		if due == nil {
			if !timer.Stop() {
				select {
				case <-timer.Chan():
				default:
				}
			}
			timer.Reset(wait)
			select {
			case <-ctx.Done():
				s.log.Debug("scheduler: run loop stopped", "reason", ctx.Err())
				return
			case <-timer.Chan():
			case <-s.wake:
			}
			continue
		}

		s.fire(*due)
	}
}

func (s *Scheduler) fire(t task) {
	now := s.clock.Now()
	switch t.kind {
	case kindPeriodicUpdate:
		s.cb.PeriodicUpdate(now)
		s.rearm(t.kind)
	case kindRouteTimeout:
		s.cb.RouteTimeout(now)
		s.rearm(t.kind)
	case kindGarbageCollect:
		s.cb.GarbageCollect(now)
		s.rearm(t.kind)
	case kindTriggeredUpdate:
		s.cb.TriggeredUpdate(now)
	}
}

// rearm reschedules a recurring task kind one period after its firing
// time, unless end-of-life has been set.
func (s *Scheduler) rearm(kind taskKind) {
	if s.endOfLife.Load() {
		return
	}
	s.mu.Lock()
	s.push(task{when: s.clock.Now().Add(s.period), kind: kind})
	s.mu.Unlock()
}
