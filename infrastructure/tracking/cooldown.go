package tracking

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/helixml/filegraph/domain/batch"
)

var (
	_ Reporter  = (*Cooldown)(nil)
	_ io.Closer = (*Cooldown)(nil)
)

// minSweep bounds how often held updates are checked.
const minSweep = 10 * time.Millisecond

// Cooldown throttles a Reporter to one update per run per interval. An update
// arriving inside the window replaces the one held for that run, and a
// background sweep delivers it once the window has passed. Terminal updates
// are delivered at once and discard whatever was held.
type Cooldown struct {
	inner    Reporter
	interval time.Duration

	mu      sync.Mutex
	sent    map[string]time.Time
	held    map[string]batch.Progress
	stop    chan struct{}
	stopped sync.WaitGroup
	once    sync.Once
}

// NewCooldown creates a Cooldown. A non-positive interval disables
// throttling.
func NewCooldown(inner Reporter, interval time.Duration) *Cooldown {
	c := &Cooldown{
		inner:    inner,
		interval: interval,
		sent:     make(map[string]time.Time),
		held:     make(map[string]batch.Progress),
		stop:     make(chan struct{}),
	}
	if interval > 0 {
		c.stopped.Add(1)
		go c.sweep(max(interval/4, minSweep))
	}
	return c
}

// OnChange delivers or holds progress.
func (c *Cooldown) OnChange(ctx context.Context, progress batch.Progress) error {
	id := progress.RunID()

	c.mu.Lock()
	if progress.State().IsTerminal() {
		delete(c.sent, id)
		delete(c.held, id)
		c.mu.Unlock()
		return c.inner.OnChange(ctx, progress)
	}

	now := time.Now()
	if last, ok := c.sent[id]; ok && now.Sub(last) < c.interval {
		c.held[id] = progress
		c.mu.Unlock()
		return nil
	}
	c.sent[id] = now
	delete(c.held, id)
	c.mu.Unlock()

	return c.inner.OnChange(ctx, progress)
}

// Close stops the sweep and delivers everything still held.
func (c *Cooldown) Close() error {
	c.once.Do(func() { close(c.stop) })
	c.stopped.Wait()

	c.mu.Lock()
	held := c.held
	c.held = make(map[string]batch.Progress)
	c.mu.Unlock()

	for _, p := range held {
		_ = c.inner.OnChange(context.Background(), p)
	}
	return nil
}

func (c *Cooldown) sweep(every time.Duration) {
	defer c.stopped.Done()

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case now := <-ticker.C:
			for _, p := range c.due(now) {
				_ = c.inner.OnChange(context.Background(), p)
			}
		}
	}
}

// due removes and returns the held updates whose window has passed.
func (c *Cooldown) due(now time.Time) []batch.Progress {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []batch.Progress
	for id, p := range c.held {
		if now.Sub(c.sent[id]) < c.interval {
			continue
		}
		out = append(out, p)
		c.sent[id] = now
		delete(c.held, id)
	}
	return out
}
