// Package gc schedules background compaction sweeps. Foreground deletion
// and expiry only rewrite meta rows; these sweeps are what actually
// reclaims superseded member and score entries.
package gc

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"zsetdb/pkg/logger"
	"zsetdb/pkg/zset"
)

// defaultCron runs a full sweep daily at 03:00.
const defaultCron = "0 3 * * *"

// Start launches the sweep scheduler. Returns a cancel func that stops it.
func Start(ctx context.Context, store *zset.Store, cronExpr string) (context.CancelFunc, error) {
	if cronExpr == "" {
		cronExpr = defaultCron
	}
	if !gronx.IsValid(cronExpr) {
		logger.Error("gc_invalid_cron", "cron", cronExpr)
		return nil, fmt.Errorf("invalid gc cron expression: %s", cronExpr)
	}

	logger.Info("gc_enabled", "cron", cronExpr)
	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, store, cronExpr)
	return cancel, nil
}

// RunOnce triggers a single full-range sweep immediately.
func RunOnce(store *zset.Store) error {
	start := time.Now()
	if err := store.CompactRange(nil, nil); err != nil {
		logger.Error("gc_run_error", "error", err)
		return err
	}
	logger.Info("gc_run_done", "elapsed", time.Since(start).String())
	return nil
}

// runScheduler computes the next tick with gronx and sleeps until then,
// sweeping once per tick.
func runScheduler(ctx context.Context, store *zset.Store, cronExpr string) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("gc_scheduler_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("gc_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
			_ = RunOnce(store)
		case <-ctx.Done():
			logger.Info("gc_scheduler_stopping")
			return
		}
	}
}
