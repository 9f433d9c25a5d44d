// Package app wires the stores, the replayed index, the ops endpoint and
// the maintenance scheduler into one explicitly-constructed application.
package app

import (
	"context"
	"fmt"
	"net/http"

	"branchdb/internal/maintenance"
	"branchdb/pkg/blobs"
	"branchdb/pkg/config"
	"branchdb/pkg/logger"
	"branchdb/pkg/store"
	"branchdb/pkg/uistate"
)

// App encapsulates the engine components and lifecycle.
type App struct {
	eff     config.EffectiveConfigResult
	version string

	store   *store.Store
	blobs   *blobs.Store
	uistate *uistate.Store

	srv         *http.Server
	maintCancel context.CancelFunc
}

// New opens the record log, replays it into the index, opens the
// collaborator stores and backfills their branch counters. It does not
// start the scheduler or the ops endpoint; call Run for those.
func New(eff config.EffectiveConfigResult, version string) (*App, error) {
	st, err := store.Open(eff.LogDir)
	if err != nil {
		return nil, fmt.Errorf("open store at %s: %w", eff.LogDir, err)
	}
	bl, err := blobs.Open(eff.Config.Storage.BlobPath)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	us, err := uistate.Open(eff.Config.Storage.UIStatePath)
	if err != nil {
		st.Close()
		bl.Close()
		return nil, fmt.Errorf("open uistate store: %w", err)
	}
	if err := st.BackfillCounters(us); err != nil {
		logger.Warn("counter_backfill_failed", "error", err)
	}
	return &App{eff: eff, version: version, store: st, blobs: bl, uistate: us}, nil
}

// Store exposes the conversation store to embedding callers.
func (a *App) Store() *store.Store { return a.store }

// Run starts the maintenance scheduler and the ops HTTP endpoint and
// blocks until ctx is cancelled or a fatal server error occurs.
func (a *App) Run(ctx context.Context) error {
	cancel, err := maintenance.Start(ctx, a.eff, a.store, a.blobs)
	if err != nil {
		return err
	}
	a.maintCancel = cancel

	errCh := a.startHTTP(ctx)
	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Close stops background work and flushes and releases every store.
func (a *App) Close() error {
	if a.maintCancel != nil {
		a.maintCancel()
	}
	if a.srv != nil {
		_ = a.srv.Close()
	}
	var firstErr error
	if err := a.store.Close(); err != nil {
		firstErr = err
	}
	if err := a.blobs.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := a.uistate.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	logger.Info("app_closed")
	return firstErr
}
