// Package maintenance runs the scheduled compaction sweep over every
// conversation's record log.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
	"golang.org/x/time/rate"

	"branchdb/pkg/blobs"
	"branchdb/pkg/config"
	"branchdb/pkg/logger"
	"branchdb/pkg/store"
)

const defaultCron = "0 3 * * *"

// Start launches the compaction scheduler if enabled and returns a cancel
// func. With maintenance disabled it returns a no-op cancel.
func Start(ctx context.Context, eff config.EffectiveConfigResult, st *store.Store, bl *blobs.Store) (context.CancelFunc, error) {
	mc := eff.Config.Maintenance
	if !mc.Enabled {
		logger.Info("maintenance_disabled")
		return func() {}, nil
	}

	cronExpr := mc.Cron
	if cronExpr == "" {
		cronExpr = defaultCron
	}
	if !gronx.IsValid(cronExpr) {
		logger.Error("maintenance_invalid_cron", "cron", mc.Cron)
		return nil, fmt.Errorf("invalid maintenance cron expression: %s", mc.Cron)
	}

	opts := buildOptions(mc, bl)
	logger.Info("maintenance_enabled", "cron", cronExpr, "rate_bytes_per_sec", mc.RateBytesPerSec)

	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, st, opts, cronExpr)
	return cancel, nil
}

// RunOnce sweeps every record file once. Exposed for the ops endpoint's
// on-demand trigger.
func RunOnce(ctx context.Context, eff config.EffectiveConfigResult, st *store.Store, bl *blobs.Store) error {
	return sweep(ctx, st, buildOptions(eff.Config.Maintenance, bl))
}

func buildOptions(mc config.MaintenanceConfig, bl *blobs.Store) store.CompactOptions {
	opts := store.DefaultCompactOptions()
	cc := mc.Compaction
	if cc.CreateBackup != nil {
		opts.CreateBackup = *cc.CreateBackup
	}
	if cc.RemoveActiveBranchChanged != nil {
		opts.RemoveActiveBranchChanged = *cc.RemoveActiveBranchChanged
	}
	if cc.RemoveMessageOrderChanged != nil {
		opts.RemoveMessageOrderChanged = *cc.RemoveMessageOrderChanged
	}
	if cc.StripDebugData != nil {
		opts.StripDebugData = *cc.StripDebugData
	}
	if cc.MoveDebugToBlobs != nil && *cc.MoveDebugToBlobs {
		opts.MoveDebugToBlobs = true
		opts.Blobs = bl
	}
	if mc.RateBytesPerSec > 0 {
		opts.Limiter = rate.NewLimiter(rate.Limit(mc.RateBytesPerSec), mc.RateBytesPerSec)
	}
	return opts
}

func runScheduler(ctx context.Context, st *store.Store, opts store.CompactOptions, cronExpr string) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("maintenance_scheduler_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("maintenance_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
		case <-ctx.Done():
			logger.Info("maintenance_scheduler_stopping")
			return
		}

		if err := sweep(ctx, st, opts); err != nil {
			logger.Error("maintenance_sweep_error", "error", err)
		}
	}
}

func sweep(ctx context.Context, st *store.Store, opts store.CompactOptions) error {
	var files, removed, failed int
	err := st.Log().Walk(func(convID, path string) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		files++
		res, err := st.CompactByID(ctx, convID, opts)
		if errors.Is(err, store.ErrNotFound) {
			// file exists but the id never replayed; compact it directly
			res, err = store.CompactConversation(ctx, path, opts)
		}
		if err != nil {
			failed++
			logger.Warn("maintenance_compact_failed", "conversation", convID, "error", err)
			return nil
		}
		for _, n := range res.RemovedEvents {
			removed += n
		}
		return nil
	})
	if err != nil {
		return err
	}
	logger.Info("maintenance_sweep_complete", "files", files, "events_removed", removed, "failed", failed)
	return nil
}
