// Package ratelimit gates collaborator calls that are subject to
// server-side throttling: a fixed minimum delay between per-file
// operations to pre-empt throttling, and a mandatory suspend-and-retry
// when the server signals a flood wait.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/renameflux/renameflux/internal/telegramapi"
)

// DefaultMinDelay is the pause enforced between consecutive per-file
// operations. Telegram tolerates roughly 20 sends a minute.
const DefaultMinDelay = 2 * time.Second

// floodMargin is added on top of a server-mandated wait.
const floodMargin = 10 * time.Second

// Controller serializes throttle-sensitive calls.
type Controller struct {
	mu       sync.Mutex
	minDelay time.Duration
	lastFile time.Time

	logf  func(string)
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewController returns a controller enforcing minDelay between
// per-file operations. logf receives one line per enforced pause.
func NewController(minDelay time.Duration, logf func(string)) *Controller {
	if minDelay <= 0 {
		minDelay = DefaultMinDelay
	}
	if logf == nil {
		logf = func(string) {}
	}
	return &Controller{
		minDelay: minDelay,
		logf:     logf,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// SetClock overrides the time source and sleeper (for tests).
func (c *Controller) SetClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if now != nil {
		c.now = now
	}
	if sleep != nil {
		c.sleep = sleep
	}
}

// PaceFile blocks until the minimum inter-file delay has elapsed since
// the previous per-file operation. The first call never waits.
func (c *Controller) PaceFile(ctx context.Context) error {
	c.mu.Lock()
	now := c.now()
	var wait time.Duration
	if !c.lastFile.IsZero() {
		if elapsed := now.Sub(c.lastFile); elapsed < c.minDelay {
			wait = c.minDelay - elapsed
		}
	}
	sleep := c.sleep
	c.mu.Unlock()

	if wait > 0 {
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}

	c.mu.Lock()
	c.lastFile = c.now()
	c.mu.Unlock()
	return nil
}

// Do runs op, and if it reports a flood wait, suspends for the mandated
// duration plus a safety margin and retries exactly once. This is the
// only retry the engine performs automatically; every other failure is
// returned as-is.
func (c *Controller) Do(ctx context.Context, op func() error) error {
	err := op()
	wait, ok := telegramapi.AsFloodWait(err)
	if !ok {
		return err
	}

	pause := wait + floodMargin
	c.logf(fmt.Sprintf("Flood wait signaled: pausing %s before retrying", pause))

	c.mu.Lock()
	sleep := c.sleep
	c.mu.Unlock()
	if err := sleep(ctx, pause); err != nil {
		return err
	}
	return op()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
