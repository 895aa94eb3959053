// Package rib implements the per-router routing table: an indexed
// collection of Route Table Entries keyed by destination id, with
// per-entry timeout/garbage bookkeeping and an always-present self-entry.
package rib

import (
	"fmt"
	"sync"
	"time"

	"github.com/dvproto/ripsim/internal/wire"
)

// Entry is a routing table entry: the wire-visible route fields plus the
// bookkeeping state the protocol engine and timer supervisor maintain.
type Entry struct {
	Addr    uint32
	NextHop uint32
	Metric  uint32

	Changed   bool
	Imported  bool
	IsGarbage bool

	// Timeout is the last time the entry was refreshed, or the time it
	// entered garbage state. Zero for imported (self) entries, which
	// never time out.
	Timeout time.Time
}

// wireRTE returns the wire-visible projection of e, for equality checks
// and emission.
func (e Entry) wireRTE() wire.RTE {
	return wire.NewRTE(e.Addr, e.NextHop, e.Metric)
}

// Table is a router's routing table: a map of destination id to Entry,
// guarded by a mutex since the receive path, the triggered-update path,
// and every timer callback mutate it concurrently (spec.md §5).
type Table struct {
	mu      sync.Mutex
	selfID  uint32
	entries map[uint32]*Entry
}

// New constructs a Table for router selfID, with its self-entry already
// present: addr == selfID, next_hop == 0, metric == 0, imported == true.
func New(selfID uint32) *Table {
	t := &Table{
		selfID:  selfID,
		entries: make(map[uint32]*Entry),
	}
	t.entries[selfID] = &Entry{
		Addr:     selfID,
		NextHop:  0,
		Metric:   0,
		Imported: true,
	}
	return t
}

// SelfID returns the router id this table belongs to.
func (t *Table) SelfID() uint32 { return t.selfID }

// Self returns a copy of the self-entry. It always exists.
func (t *Table) Self() Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return *t.entries[t.selfID]
}

// Get returns a copy of the entry for addr, and whether it was present.
func (t *Table) Get(addr uint32) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[addr]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Insert adds a brand-new non-self entry, learned for the first time.
// It returns an error, and leaves the table unchanged, if addr == selfID
// or metric >= wire.MaxMetric.
func (t *Table) Insert(now time.Time, addr, nextHop, metric uint32) (Entry, error) {
	if addr == t.selfID {
		return Entry{}, fmt.Errorf("rib: cannot insert a route to self (id %d)", addr)
	}
	if metric >= wire.MaxMetric {
		return Entry{}, fmt.Errorf("rib: cannot insert unreachable route for %d (metric %d)", addr, metric)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	e := &Entry{
		Addr:    addr,
		NextHop: nextHop,
		Metric:  metric,
		Changed: true,
		Timeout: now,
	}
	t.entries[addr] = e
	return *e, nil
}

// UpdateInPlace copies metric and next hop from a remote-learned route
// into the current entry for addr, resets its timeout, clears garbage,
// and marks it changed. Returns the updated entry; false if addr is
// absent from the table.
func (t *Table) UpdateInPlace(now time.Time, addr, nextHop, metric uint32) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[addr]
	if !ok {
		return Entry{}, false
	}
	e.Metric = metric
	e.NextHop = nextHop
	e.Timeout = now
	e.IsGarbage = false
	e.Changed = true
	return *e, true
}

// Poison marks the entry for addr unreachable: metric = 16, is_garbage =
// true, changed = true, timeout = now. Returns false if addr is absent.
func (t *Table) Poison(now time.Time, addr uint32) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[addr]
	if !ok {
		return Entry{}, false
	}
	e.Metric = wire.MaxMetric
	e.IsGarbage = true
	e.Changed = true
	e.Timeout = now
	return *e, true
}

// Refresh resets the entry's timeout to now, if it is live (not garbage).
// No-op (but still returns ok=true) if the entry is already garbage.
func (t *Table) Refresh(now time.Time, addr uint32) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[addr]
	if !ok {
		return Entry{}, false
	}
	if !e.IsGarbage {
		e.Timeout = now
	}
	return *e, true
}

// Remove deletes the entry for addr. The self-entry can never be removed.
func (t *Table) Remove(addr uint32) {
	if addr == t.selfID {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, addr)
}

// ClearChanged clears the changed flag on the entry for addr, if present.
func (t *Table) ClearChanged(addr uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[addr]; ok {
		e.Changed = false
	}
}

// IterNonSelf returns a stable-ordered snapshot of every non-self entry.
// Order is by ascending destination id: not contractual per spec.md, but
// stable within and across calls for a given table state, which is all
// any one emission needs.
func (t *Table) IterNonSelf() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entry, 0, len(t.entries))
	for addr, e := range t.entries {
		if addr == t.selfID {
			continue
		}
		out = append(out, *e)
	}
	sortEntries(out)
	return out
}

// All returns a stable-ordered snapshot of every entry, self-entry first.
func (t *Table) All() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entry, 0, len(t.entries))
	self := *t.entries[t.selfID]
	for addr, e := range t.entries {
		if addr == t.selfID {
			continue
		}
		out = append(out, *e)
	}
	sortEntries(out)
	return append([]Entry{self}, out...)
}

// LiveNonImported returns every non-imported entry whose Timeout age
// (relative to now) is at least age, for route-timeout scanning. Only
// entries that are not already garbage are eligible.
func (t *Table) LiveNonImported(now time.Time, age time.Duration) []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []Entry
	for addr, e := range t.entries {
		if addr == t.selfID || e.Imported || e.IsGarbage {
			continue
		}
		if now.Sub(e.Timeout) >= age {
			out = append(out, *e)
		}
	}
	sortEntries(out)
	return out
}

// GarbageOlderThan returns every garbage entry whose Timeout age is at
// least age, for garbage-collection scanning.
func (t *Table) GarbageOlderThan(now time.Time, age time.Duration) []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []Entry
	for addr, e := range t.entries {
		if addr == t.selfID || !e.IsGarbage {
			continue
		}
		if now.Sub(e.Timeout) >= age {
			out = append(out, *e)
		}
	}
	sortEntries(out)
	return out
}

func sortEntries(es []Entry) {
	// Small N (router cap is 8, destinations bounded similarly): a plain
	// insertion sort avoids pulling in sort for a handful of elements
	// while keeping emission order deterministic.
	for i := 1; i < len(es); i++ {
		for j := i; j > 0 && es[j].Addr < es[j-1].Addr; j-- {
			es[j], es[j-1] = es[j-1], es[j]
		}
	}
}
