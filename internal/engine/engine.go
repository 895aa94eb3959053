// Package engine implements the distance-vector protocol engine: the
// receive-path update rules (Bellman-Ford with split horizon and
// poisoned reverse), the emit-path filtering, and the timer supervisor
// that drives periodic updates, route timeout, and garbage collection.
package engine

import (
	"log/slog"
	"sync"
	"time"

	"github.com/dvproto/ripsim/internal/metrics"
	"github.com/dvproto/ripsim/internal/rib"
	"github.com/dvproto/ripsim/internal/wire"
)

const (
	// Period is the common cadence (T) for the three recurring timer tasks.
	Period = 5 * time.Second
	// RouteTimeout is how long a live route may go unrefreshed before
	// the timer supervisor poisons it (6*T).
	RouteTimeout = 6 * Period
	// DeleteTimeout is how long a poisoned route sits as garbage before
	// the timer supervisor deletes it (6*T).
	DeleteTimeout = 6 * Period
	// TriggeredDelay is how long after a detected change a triggered
	// update is emitted.
	TriggeredDelay = 2 * time.Second
)

// Output describes a configured neighbor: the UDP port it listens on and
// the additive link-metric cost of reaching it.
type Output struct {
	Port   int
	Metric uint32
}

// Engine owns a router's routing table and applies the distance-vector
// rules to it. All exported methods serialize on a single mutex, which is
// how this implementation satisfies the "single mutator at any time"
// requirement (spec.md §5, option b): the event loop's receive path, the
// timer supervisor's periodic callbacks, and the triggered-update drain
// all call through Engine and never touch the table directly.
type Engine struct {
	selfID  uint32
	outputs map[uint32]Output
	table   *rib.Table
	log     *slog.Logger
	met     *metrics.Metrics

	mu             sync.Mutex
	pendingChanged map[uint32]struct{}
	triggerArmed   bool
}

// New constructs an Engine for selfID with the given neighbor set and
// backing table. log and met may be nil (met is nil-safe; log defaults
// to slog.Default() via the caller's wiring and is never nil in
// practice, but nil is tolerated for tests that don't care about logs).
func New(selfID uint32, outputs map[uint32]Output, table *rib.Table, log *slog.Logger, met *metrics.Metrics) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		selfID:         selfID,
		outputs:        outputs,
		table:          table,
		log:            log,
		met:            met,
		pendingChanged: make(map[uint32]struct{}),
	}
}

// Table exposes the backing routing table for read-only inspection (used
// by the log sink and by tests asserting invariants).
func (e *Engine) Table() *rib.Table { return e.table }

// Receive applies the distance-vector update rules to every RTE in dgram
// (spec.md §4.3), in wire order, without short-circuiting after the
// first qualifying RTE (see DESIGN.md's Open Question decision).
//
// It returns whether any entry in the table was changed by this
// datagram, and whether the caller should now arm a triggered-update
// timer (false if one is already pending — per spec.md §4.3, multiple
// receives within the triggered-delay window are coalesced).
func (e *Engine) Receive(now time.Time, dgram wire.Datagram) (changed bool, shouldArm bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	out, ok := e.outputs[uint32(dgram.Header.Src)]
	if !ok {
		// Sender is not a known neighbor: no link-cost entry exists for
		// it, so the whole datagram is discarded (spec.md §4.3 step 3
		// and Design Notes' "unknown neighbor" tightening).
		if e.met != nil {
			e.met.PacketsRXInvalid()
		}
		return false, false
	}

	if e.met != nil {
		e.met.PacketsRX()
	}

	any := false
	for _, r := range dgram.RTEs {
		if r.Addr == e.selfID {
			continue
		}
		if r.Metric > wire.MaxMetric {
			// A wire metric outside [0,16] can't come from a conforming
			// peer; treat the RTE as malformed and drop it rather than
			// summing it (spec.md §7's "malformed datagram...silently
			// discarded", applied per-RTE). Computing in uint64 before
			// capping keeps this safe even if the check above is loosened.
			if e.met != nil {
				e.met.PacketsRXInvalid()
			}
			continue
		}
		nextHop := uint32(dgram.Header.Src)
		effective := uint32(min(uint64(r.Metric)+uint64(out.Metric), uint64(wire.MaxMetric)))

		current, exists := e.table.Get(r.Addr)
		if !exists {
			if effective == wire.MaxMetric {
				continue
			}
			e.table.Insert(now, r.Addr, nextHop, effective)
			e.markChanged(r.Addr)
			any = true
			continue
		}

		if nextHop == current.NextHop {
			switch {
			case effective >= wire.MaxMetric && current.Metric != effective:
				e.table.Poison(now, r.Addr)
				e.markChanged(r.Addr)
				any = true
			case effective != current.Metric:
				e.table.UpdateInPlace(now, r.Addr, nextHop, effective)
				e.markChanged(r.Addr)
				any = true
			case !current.IsGarbage:
				e.table.Refresh(now, r.Addr)
			}
		} else if effective < current.Metric {
			e.table.UpdateInPlace(now, r.Addr, nextHop, effective)
			e.markChanged(r.Addr)
			any = true
		}
	}

	if !any {
		return false, false
	}

	e.log.Debug("engine: routing table changed on receive", "router", e.selfID, "from", dgram.Header.Src)
	shouldArm = !e.triggerArmed
	if shouldArm {
		e.triggerArmed = true
	}
	return true, shouldArm
}

// markChanged records addr as part of the pending triggered-update set.
// Caller must hold e.mu.
func (e *Engine) markChanged(addr uint32) {
	e.pendingChanged[addr] = struct{}{}
}

// DrainTriggered collects the entries accumulated since the last drain,
// clears their table-level Changed flag and the pending set, and returns
// the per-neighbor datagrams to send, keyed by neighbor id. Called by the
// scheduler when a triggered-update timer fires.
func (e *Engine) DrainTriggered(now time.Time) map[uint32]wire.Datagram {
	e.mu.Lock()
	defer e.mu.Unlock()

	addrs := make([]uint32, 0, len(e.pendingChanged))
	for a := range e.pendingChanged {
		addrs = append(addrs, a)
	}
	e.pendingChanged = make(map[uint32]struct{})
	e.triggerArmed = false

	if len(addrs) == 0 {
		return nil
	}
	entries := make([]rib.Entry, 0, len(addrs))
	for _, a := range addrs {
		if en, ok := e.table.Get(a); ok {
			entries = append(entries, en)
		}
		e.table.ClearChanged(a)
	}
	return e.emit(entries)
}

// EmitPeriodic builds the periodic-update datagrams, keyed by neighbor
// id: every entry (self-entry included) filtered per neighbor with split
// horizon and poisoned reverse.
func (e *Engine) EmitPeriodic() map[uint32]wire.Datagram {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.emit(e.table.All())
}

// emit builds one datagram per configured neighbor from candidates,
// applying split horizon with poisoned reverse (spec.md §4.4). Caller
// must hold e.mu.
func (e *Engine) emit(candidates []rib.Entry) map[uint32]wire.Datagram {
	if len(e.outputs) == 0 {
		return nil
	}
	header := wire.NewHeader(uint16(e.selfID))
	dgrams := make(map[uint32]wire.Datagram, len(e.outputs))
	for n := range e.outputs {
		rtes := make([]wire.RTE, 0, len(candidates))
		for _, c := range candidates {
			if c.NextHop == n {
				rtes = append(rtes, wire.NewRTE(c.Addr, c.NextHop, wire.MaxMetric))
			} else {
				rtes = append(rtes, wire.NewRTE(c.Addr, c.NextHop, c.Metric))
			}
		}
		dgrams[n] = wire.Datagram{Header: header, RTEs: rtes}
	}
	return dgrams
}

// Outputs returns a copy of the configured neighbor set.
func (e *Engine) Outputs() map[uint32]Output {
	out := make(map[uint32]Output, len(e.outputs))
	for k, v := range e.outputs {
		out[k] = v
	}
	return out
}

// RouteTimeoutScan poisons every live non-imported entry whose age has
// reached RouteTimeout. Returns the addrs poisoned, for logging.
func (e *Engine) RouteTimeoutScan(now time.Time) []uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	stale := e.table.LiveNonImported(now, RouteTimeout)
	var poisoned []uint32
	for _, s := range stale {
		e.table.Poison(now, s.Addr)
		e.markChanged(s.Addr)
		poisoned = append(poisoned, s.Addr)
	}
	if len(poisoned) > 0 {
		e.log.Info("engine: routes timed out", "router", e.selfID, "destinations", poisoned)
	}
	return poisoned
}

// GarbageCollectScan deletes every garbage entry whose age has reached
// DeleteTimeout. Returns the addrs deleted, for logging.
func (e *Engine) GarbageCollectScan(now time.Time) []uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	dead := e.table.GarbageOlderThan(now, DeleteTimeout)
	var deleted []uint32
	for _, d := range dead {
		e.table.Remove(d.Addr)
		deleted = append(deleted, d.Addr)
	}
	if len(deleted) > 0 {
		e.log.Info("engine: garbage collected", "router", e.selfID, "destinations", deleted)
	}
	return deleted
}
