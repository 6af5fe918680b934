package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"msgledger/pkg/alias"
	"msgledger/pkg/cache"
	"msgledger/pkg/logger"
)

// Start launches the two engine timers: the TTL eviction sweep on a cron
// schedule and the periodic alias-table flush. Both are idempotent and
// safe to skip or overlap. Returns a cancel func stopping both.
func Start(ctx context.Context, c *cache.Cache, tables *alias.Tables, cronExpr string, flushEvery time.Duration) (context.CancelFunc, error) {
	if cronExpr == "" {
		cronExpr = "*/5 * * * *"
	}
	if !gronx.IsValid(cronExpr) {
		return nil, fmt.Errorf("invalid sweep cron expression: %s", cronExpr)
	}
	if flushEvery <= 0 {
		flushEvery = 30 * time.Second
	}

	ctx2, cancel := context.WithCancel(ctx)
	go runSweep(ctx2, c, cronExpr)
	go runFlush(ctx2, tables, flushEvery)
	logger.Info("sweeper_started", "cron", cronExpr, "flush_every", flushEvery.String())
	return cancel, nil
}

// runSweep computes the next tick for the cron expression and sleeps
// until then, evicting expired cache records on each tick.
func runSweep(ctx context.Context, c *cache.Cache, cronExpr string) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("sweep_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("sweep_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
			if n := c.EvictExpired(time.Now()); n > 0 {
				logger.Info("cache_sweep", "evicted", n, "resident", c.Len())
			}
		case <-ctx.Done():
			logger.Info("sweep_stopping")
			return
		}
	}
}

// runFlush persists the alias tables on a fixed period so a crash loses
// at most that window of alias data even absent new events.
func runFlush(ctx context.Context, tables *alias.Tables, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			tables.Persist()
		case <-ctx.Done():
			tables.Persist()
			logger.Info("alias_flush_stopping")
			return
		}
	}
}
