package router

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/dvproto/ripsim/internal/config"
	"github.com/dvproto/ripsim/internal/engine"
)

// S1: two-router line. After one periodic exchange both routers learn
// the peer at metric == link cost, next_hop == peer.
func TestRouter_TwoRouterLineConverges(t *testing.T) {
	clock := clockwork.NewFakeClock()
	logDir := t.TempDir()

	cfg1 := config.RouterConfig{
		ID:      1,
		Inputs:  []int{19101},
		Outputs: []config.Output{{NeighborID: 2, Port: 19102, Metric: 1}},
	}
	cfg2 := config.RouterConfig{
		ID:      2,
		Inputs:  []int{19102},
		Outputs: []config.Output{{NeighborID: 1, Port: 19101, Metric: 1}},
	}

	r1, err := New(cfg1, logDir, 30*time.Second, clock, nil)
	require.NoError(t, err)
	r2, err := New(cfg2, logDir, 30*time.Second, clock, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r1.Run(ctx)
	go r2.Run(ctx)

	blockCtx, blockCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer blockCancel()
	require.NoError(t, clock.BlockUntilContext(blockCtx, 2))

	clock.Advance(engine.Period)

	require.Eventually(t, func() bool {
		e1, ok1 := r1.table.Get(2)
		e2, ok2 := r2.table.Get(1)
		return ok1 && ok2 && e1.Metric == 1 && e1.NextHop == 2 && e2.Metric == 1 && e2.NextHop == 1
	}, 2*time.Second, 10*time.Millisecond, "routers did not converge to expected peer routes")
}

// S2: three-router chain with split horizon active. After convergence R1
// learns router 3 via router 2 at metric 2, and R3 learns router 1 via
// router 2 at metric 2. The datagrams themselves are not inspected here;
// poisoned reverse is checked in the engine's EmitPeriodic test.
func TestRouter_ThreeRouterChainConvergesWithSplitHorizon(t *testing.T) {
	clock := clockwork.NewFakeClock()
	logDir := t.TempDir()

	cfg1 := config.RouterConfig{
		ID:      1,
		Inputs:  []int{19201},
		Outputs: []config.Output{{NeighborID: 2, Port: 19202, Metric: 1}},
	}
	cfg2 := config.RouterConfig{
		ID:     2,
		Inputs: []int{19202},
		Outputs: []config.Output{
			{NeighborID: 1, Port: 19201, Metric: 1},
			{NeighborID: 3, Port: 19203, Metric: 1},
		},
	}
	cfg3 := config.RouterConfig{
		ID:      3,
		Inputs:  []int{19203},
		Outputs: []config.Output{{NeighborID: 2, Port: 19202, Metric: 1}},
	}

	r1, err := New(cfg1, logDir, 30*time.Second, clock, nil)
	require.NoError(t, err)
	r2, err := New(cfg2, logDir, 30*time.Second, clock, nil)
	require.NoError(t, err)
	r3, err := New(cfg3, logDir, 30*time.Second, clock, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r1.Run(ctx)
	go r2.Run(ctx)
	go r3.Run(ctx)

	blockCtx, blockCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer blockCancel()
	require.NoError(t, clock.BlockUntilContext(blockCtx, 3))

	// First round: immediate neighbors learn each other.
	clock.Advance(engine.Period)
	require.Eventually(t, func() bool {
		_, ok12 := r1.table.Get(2)
		_, ok23 := r2.table.Get(3)
		return ok12 && ok23
	}, 2*time.Second, 10*time.Millisecond, "immediate neighbors did not learn each other")

	// Second round: R1 learns about 3 via R2's re-advertisement.
	clock.Advance(engine.Period)
	require.Eventually(t, func() bool {
		e, ok := r1.table.Get(3)
		return ok && e.Metric == 2 && e.NextHop == 2
	}, 2*time.Second, 10*time.Millisecond, "R1 did not converge on router 3 via router 2")

	e3, ok := r3.table.Get(1)
	require.True(t, ok)
	require.Equal(t, uint32(2), e3.Metric)
	require.Equal(t, uint32(2), e3.NextHop)
}
