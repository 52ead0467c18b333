package ganttsync

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/surrealdb/ganttsync/pkg/models"
	"github.com/surrealdb/ganttsync/pkg/syncer"
)

// maxBodyBytes bounds the size of a sync request body.
const maxBodyBytes = 32 << 20

// Handler returns the HTTP API:
//
//	GET  /load        - project snapshot
//	POST /sync        - apply a change request
//	GET  /health      - service health
//	GET  /api/health  - same as /health
func (a *App) Handler() http.Handler {
	router := mux.NewRouter()
	router.Use(a.logRequests)

	router.HandleFunc("/load", a.handleLoad).Methods(http.MethodGet)
	router.HandleFunc("/sync", a.handleSync).Methods(http.MethodPost)
	router.HandleFunc("/health", a.handleHealth).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", a.handleHealth).Methods(http.MethodGet)

	return router
}

func (a *App) handleLoad(w http.ResponseWriter, r *http.Request) {
	snap, err := a.syncer.Load(r.Context())
	if err != nil {
		a.log.Error().Err(err).Str("kind", string(syncer.KindOf(err))).Msg("load failed")
		snap.Message = failureMessage(err)
		respondJSON(w, http.StatusInternalServerError, snap)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

// handleSync applies a change request. Requests that decode are always
// answered with 200; a failed sync reports success false and a message, as
// clients expect.
func (a *App) handleSync(w http.ResponseWriter, r *http.Request) {
	payload, err := models.DecodeJSON(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid request payload: "+err.Error())
		return
	}

	resp, err := a.syncer.Sync(r.Context(), payload)
	if err != nil {
		a.log.Warn().
			Err(err).
			Str("kind", string(syncer.KindOf(err))).
			Interface("requestId", resp.RequestID).
			Msg("sync failed")
		resp.Message = failureMessage(err)
	}
	respondJSON(w, http.StatusOK, resp)
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":   "healthy",
		"store":    a.config.Store,
		"readOnly": a.IsReadOnly(),
		"time":     time.Now().Unix(),
	})
}

// failureMessage is the text sent to clients for a failed operation. The
// error text is forwarded unchanged.
func failureMessage(err error) string {
	return err.Error()
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		status = http.StatusInternalServerError
		response, _ = json.Marshal(map[string]any{"success": false, "message": err.Error()})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(response)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]any{"success": false, "message": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (a *App) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		a.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
