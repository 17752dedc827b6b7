package tracking_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixml/filegraph/domain/batch"
	"github.com/helixml/filegraph/infrastructure/tracking"
)

type recorder struct {
	mu  sync.Mutex
	got []batch.Progress
}

func (r *recorder) OnChange(_ context.Context, p batch.Progress) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, p)
	return nil
}

func (r *recorder) snapshot() []batch.Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]batch.Progress(nil), r.got...)
}

func TestCooldown_FirstUpdatePerRunPassesThrough(t *testing.T) {
	rec := &recorder{}
	cooldown := tracking.NewCooldown(rec, time.Hour)
	defer func() { _ = cooldown.Close() }()

	ctx := context.Background()
	require.NoError(t, cooldown.OnChange(ctx, batch.NewProgress("run-1").SetTotal(1)))
	require.NoError(t, cooldown.OnChange(ctx, batch.NewProgress("run-2").SetTotal(1)))

	assert.Len(t, rec.snapshot(), 2)
}

func TestCooldown_HoldsLatestAndSweepsIt(t *testing.T) {
	rec := &recorder{}
	cooldown := tracking.NewCooldown(rec, 200*time.Millisecond)
	defer func() { _ = cooldown.Close() }()

	ctx := context.Background()
	p := batch.NewProgress("run-1").SetTotal(20)
	for range 20 {
		p = p.Advance(false, "item")
		require.NoError(t, cooldown.OnChange(ctx, p))
	}
	require.Len(t, rec.snapshot(), 1)

	assert.Eventually(t, func() bool { return len(rec.snapshot()) == 2 }, 2*time.Second, 10*time.Millisecond)
	got := rec.snapshot()
	assert.Equal(t, 20, got[len(got)-1].Current())
}

func TestCooldown_TerminalStatesSkipTheWindow(t *testing.T) {
	terminal := map[string]func(batch.Progress) batch.Progress{
		"completed": batch.Progress.Complete,
		"failed":    func(p batch.Progress) batch.Progress { return p.Fail("boom") },
		"cancelled": batch.Progress.Cancel,
	}
	for name, finish := range terminal {
		t.Run(name, func(t *testing.T) {
			rec := &recorder{}
			cooldown := tracking.NewCooldown(rec, time.Hour)

			ctx := context.Background()
			p := batch.NewProgress("run-1").SetTotal(3).Advance(false, "one")
			_ = cooldown.OnChange(ctx, p)
			_ = cooldown.OnChange(ctx, p.Advance(false, "two"))
			_ = cooldown.OnChange(ctx, finish(p))
			require.NoError(t, cooldown.Close())

			// The held "two" update is dropped by the terminal one.
			got := rec.snapshot()
			require.Len(t, got, 2)
			assert.True(t, got[1].State().IsTerminal())
		})
	}
}

func TestCooldown_CloseDeliversHeld(t *testing.T) {
	rec := &recorder{}
	cooldown := tracking.NewCooldown(rec, time.Hour)

	ctx := context.Background()
	p := batch.NewProgress("run-1").SetTotal(5).Advance(false, "1")
	_ = cooldown.OnChange(ctx, p)
	_ = cooldown.OnChange(ctx, p.Advance(false, "2"))
	require.Len(t, rec.snapshot(), 1)

	require.NoError(t, cooldown.Close())
	require.NoError(t, cooldown.Close())

	got := rec.snapshot()
	require.Len(t, got, 2)
	assert.Equal(t, 2, got[1].Current())
}

func TestCooldown_ZeroIntervalForwardsEverything(t *testing.T) {
	rec := &recorder{}
	cooldown := tracking.NewCooldown(rec, 0)
	defer func() { _ = cooldown.Close() }()

	p := batch.NewProgress("run-1").SetTotal(3)
	for range 3 {
		p = p.Advance(false, "x")
		_ = cooldown.OnChange(context.Background(), p)
	}
	assert.Len(t, rec.snapshot(), 3)
}
