package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"branchdb/internal/maintenance"
	"branchdb/pkg/logger"
	"branchdb/pkg/store"
	"branchdb/pkg/utils"
)

// startHTTP serves the operational endpoint: health, metrics, read-only
// archive stats and an on-demand compaction trigger. This is an ops shell,
// not a product API; the engine itself is consumed as a library.
func (a *App) startHTTP(ctx context.Context) <-chan error {
	a.srv = &http.Server{
		Addr:              a.eff.Addr,
		Handler:           a.router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("ops_http_listening", "addr", a.eff.Addr)
		if err := a.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.srv.Shutdown(shutCtx)
	}()
	return errCh
}

func (a *App) router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_ = utils.JSONWrite(w, http.StatusOK, map[string]string{"status": "ok", "version": a.version})
	}).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/v1/conversations/{id}/archive", a.handleArchive).Methods(http.MethodGet)
	r.HandleFunc("/v1/conversations/{id}/messages", a.handleMessages).Methods(http.MethodGet)
	r.HandleFunc("/v1/maintenance/compact", a.handleCompact).Methods(http.MethodPost)
	return r
}

func (a *App) handleArchive(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	stats, err := a.store.GetConversationArchive(id)
	if errors.Is(err, store.ErrNotFound) {
		utils.JSONError(w, http.StatusNotFound, "conversation not found")
		return
	}
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, stats)
}

func (a *App) handleMessages(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	msgs, err := a.store.ResolveMessages(id)
	if errors.Is(err, store.ErrNotFound) {
		utils.JSONError(w, http.StatusNotFound, "conversation not found")
		return
	}
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, msgs)
}

func (a *App) handleCompact(w http.ResponseWriter, r *http.Request) {
	if err := maintenance.RunOnce(r.Context(), a.eff, a.store, a.blobs); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]string{"status": "completed"})
}
