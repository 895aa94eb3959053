// Package router wires one simulated router's protocol engine, timer
// supervisor, UDP transport, and log sink together, and runs its event
// loop for a bounded lifespan (spec.md §4's "leaves first" components,
// assembled at the top as the event-loop/bootstrapper layer).
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/dvproto/ripsim/internal/config"
	"github.com/dvproto/ripsim/internal/engine"
	"github.com/dvproto/ripsim/internal/logsink"
	"github.com/dvproto/ripsim/internal/metrics"
	"github.com/dvproto/ripsim/internal/rib"
	"github.com/dvproto/ripsim/internal/transport"
	"github.com/dvproto/ripsim/internal/wire"
)

// Host is the loopback address every router binds and sends to
// (spec.md §6 "Wire protocol": "datagrams travel only over UDP
// loopback").
const Host = "127.0.0.1"

// readDeadline bounds each socket read so the receive loop can notice
// context cancellation promptly, mirroring the teacher's receiver
// polling cadence.
const readDeadline = 250 * time.Millisecond

// maxDatagramSize is the largest datagram the event loop will read
// (spec.md §6), capping fanout at (1024-4)/20 = 51 RTEs.
const maxDatagramSize = 1024

// Router is one simulated router: its protocol engine, timer
// supervisor, input sockets, and log sink.
type Router struct {
	id       uint32
	host     string
	log      *slog.Logger
	met      *metrics.Metrics
	table    *rib.Table
	engine   *engine.Engine
	sched    *engine.Scheduler
	sink     *logsink.Sink
	conns    []*transport.Conn
	lifespan time.Duration
	clock    clockwork.Clock
}

// New constructs a Router from a parsed stanza. logDir is the directory
// log files are written under (created if missing). clock may be nil
// (defaults to the real clock); tests inject clockwork.NewFakeClock().
func New(cfg config.RouterConfig, logDir string, lifespan time.Duration, clock clockwork.Clock, log *slog.Logger) (*Router, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = slog.Default()
	}
	log = log.With("router", cfg.ID)

	conns := make([]*transport.Conn, 0, len(cfg.Inputs))
	for _, port := range cfg.Inputs {
		c, err := transport.Listen(Host, port)
		if err != nil {
			for _, prior := range conns {
				prior.Close()
			}
			return nil, fmt.Errorf("router %d: %w", cfg.ID, err)
		}
		conns = append(conns, c)
	}

	sink, err := logsink.Open(logDir, cfg.ID)
	if err != nil {
		for _, c := range conns {
			c.Close()
		}
		return nil, fmt.Errorf("router %d: %w", cfg.ID, err)
	}

	outputs := make(map[uint32]engine.Output, len(cfg.Outputs))
	for _, o := range cfg.Outputs {
		outputs[o.NeighborID] = engine.Output{Port: o.Port, Metric: o.Metric}
	}

	met := metrics.New(cfg.ID)
	table := rib.New(cfg.ID)
	eng := engine.New(cfg.ID, outputs, table, log, met)

	r := &Router{
		id:       cfg.ID,
		host:     Host,
		log:      log,
		met:      met,
		table:    table,
		engine:   eng,
		sink:     sink,
		conns:    conns,
		lifespan: lifespan,
		clock:    clock,
	}
	r.sched = engine.NewScheduler(clock, engine.Period, engine.TriggeredDelay, engine.Callbacks{
		PeriodicUpdate:  r.onPeriodicUpdate,
		RouteTimeout:    r.onRouteTimeout,
		GarbageCollect:  r.onGarbageCollect,
		TriggeredUpdate: r.onTriggeredUpdate,
	}, log)
	return r, nil
}

// Run binds the router's timer supervisor and receive loop, blocks for
// its configured lifespan (or until ctx is canceled), then shuts the
// router down, absorbing in-flight timer firings before releasing its
// sockets and log file (spec.md §4.5 "Router lifetime").
func (r *Router) Run(ctx context.Context) error {
	if err := r.logSnapshot(); err != nil {
		r.log.Warn("router: startup snapshot failed", "error", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, r.lifespan)
	defer cancel()

	r.sched.Start()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.sched.Run(runCtx)
	}()

	for _, c := range r.conns {
		wg.Add(1)
		go func(c *transport.Conn) {
			defer wg.Done()
			r.recvLoop(runCtx, c)
		}(c)
	}

	<-runCtx.Done()
	r.sched.Stop()
	// Absorb in-flight timer/receive firings before releasing resources
	// (spec.md §9 "Global wait before sockets bind" — the same
	// reasoning applies symmetrically at shutdown).
	time.Sleep(50 * time.Millisecond)
	wg.Wait()

	var closeErr error
	for _, c := range r.conns {
		if err := c.Close(); err != nil {
			closeErr = err
		}
	}
	if err := r.sink.Close(); err != nil {
		r.log.Warn("router: log close failed", "error", err)
	}
	return closeErr
}

// recvLoop reads datagrams off one input socket until ctx is canceled,
// feeding each to the protocol engine.
func (r *Router) recvLoop(ctx context.Context, c *transport.Conn) {
	buf := make([]byte, maxDatagramSize)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := c.SetReadDeadline(time.Now().Add(readDeadline)); err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			r.log.Warn("router: set read deadline failed", "error", err)
			continue
		}

		n, _, err := c.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			r.log.Warn("router: read failed", "error", err)
			continue
		}

		dgram, err := wire.Decode(buf[:n])
		if err != nil {
			r.met.PacketsRXInvalid()
			continue
		}

		changed, shouldArm := r.engine.Receive(r.clock.Now(), dgram)
		if changed {
			if err := r.logSnapshot(); err != nil {
				r.log.Warn("router: snapshot failed", "error", err)
			}
		}
		if shouldArm {
			r.sched.ScheduleTriggered()
		}
	}
}

func (r *Router) onPeriodicUpdate(now time.Time) {
	r.sendAll(r.engine.EmitPeriodic())
}

func (r *Router) onTriggeredUpdate(now time.Time) {
	r.sendAll(r.engine.DrainTriggered(now))
}

func (r *Router) onRouteTimeout(now time.Time) {
	poisoned := r.engine.RouteTimeoutScan(now)
	r.met.RoutesTimedOut(len(poisoned))
	if len(poisoned) > 0 {
		if err := r.logSnapshot(); err != nil {
			r.log.Warn("router: snapshot failed", "error", err)
		}
	}
}

func (r *Router) onGarbageCollect(now time.Time) {
	deleted := r.engine.GarbageCollectScan(now)
	r.met.RoutesDeleted(len(deleted))
	if len(deleted) > 0 {
		if err := r.logSnapshot(); err != nil {
			r.log.Warn("router: snapshot failed", "error", err)
		}
	}
}

// sendAll sends each per-neighbor datagram out from the router's first
// input socket (spec.md §4.4: "the source port need not correspond to a
// specific input"). Send failures are logged and dropped, never
// retried (spec.md §7 "Send error").
func (r *Router) sendAll(dgrams map[uint32]wire.Datagram) {
	if len(dgrams) == 0 || len(r.conns) == 0 {
		return
	}
	out := r.conns[0]
	outputs := r.engine.Outputs()
	for neighbor, dgram := range dgrams {
		o, ok := outputs[neighbor]
		if !ok {
			continue
		}
		if _, err := out.WriteTo(dgram.Encode(), r.host, o.Port); err != nil {
			r.log.Warn("router: send failed", "neighbor", neighbor, "error", err)
			r.met.SendError()
			continue
		}
		r.met.PacketsTX()
	}
}

func (r *Router) logSnapshot() error {
	all := r.table.All()
	r.met.SetTableSize(len(all))
	r.met.SetSchedulerQueueLen(r.sched.QueueLen())
	return r.sink.Snapshot(r.id, all)
}
