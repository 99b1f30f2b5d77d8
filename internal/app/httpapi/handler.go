// Package httpapi exposes the ledger operations as a REST API.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/minedeck/minedeck-server/internal/app/ledger"
	"github.com/minedeck/minedeck-server/internal/app/metrics"
	"github.com/minedeck/minedeck-server/internal/app/services/boosts"
	"github.com/minedeck/minedeck-server/internal/app/services/sessions"
	"github.com/minedeck/minedeck-server/internal/app/services/withdrawals"
	"github.com/minedeck/minedeck-server/internal/app/snapshot"
	"github.com/minedeck/minedeck-server/internal/app/storage"
	"github.com/minedeck/minedeck-server/pkg/logger"
)

// handler bundles HTTP endpoints for the ledger services.
type handler struct {
	sessions    *sessions.Service
	boosts      *boosts.Service
	withdrawals *withdrawals.Service
	ledger      *ledger.Ledger
	log         *logger.Logger
	startedAt   time.Time
}

// NewHandler returns a router exposing the ledger REST API.
func NewHandler(sess *sessions.Service, bst *boosts.Service, wdr *withdrawals.Service, led *ledger.Ledger, log *logger.Logger) http.Handler {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	h := &handler{
		sessions:    sess,
		boosts:      bst,
		withdrawals: wdr,
		ledger:      led,
		log:         log,
		startedAt:   time.Now(),
	}

	r := mux.NewRouter()
	r.HandleFunc("/api/session", h.createSession).Methods(http.MethodPost)
	r.HandleFunc("/api/session/{id}/state", h.getSessionState).Methods(http.MethodGet)
	r.HandleFunc("/api/session/{id}/state", h.setSessionState).Methods(http.MethodPost)
	r.HandleFunc("/api/session/{id}/boost", h.createBoost).Methods(http.MethodPost)
	r.HandleFunc("/api/boost/{id}/verify", h.verifyBoost).Methods(http.MethodPost)
	r.HandleFunc("/api/session/{id}/withdraw", h.createWithdrawal).Methods(http.MethodPost)
	r.HandleFunc("/api/withdrawal/{id}/complete", h.completeWithdrawal).Methods(http.MethodPost)
	r.HandleFunc("/api/stats", h.getStats).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	return r
}

func (h *handler) createSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		UserAgent string `json:"userAgent"`
		StartedAt string `json:"startedAt"`
	}
	// The body is optional for session starts.
	_ = decodeJSON(r.Body, &payload)
	if payload.UserAgent == "" {
		payload.UserAgent = r.UserAgent()
	}

	var startedAt time.Time
	if payload.StartedAt != "" {
		parsed, err := time.Parse(time.RFC3339, payload.StartedAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("startedAt must be an RFC3339 timestamp"))
			return
		}
		startedAt = parsed
	}

	created, err := h.sessions.Create(r.Context(), payload.UserAgent, startedAt)
	metrics.RecordOperation("create_session", err)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *handler) getSessionState(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	state, err := h.sessions.GetState(r.Context(), id)
	metrics.RecordOperation("get_session_state", err)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *handler) setSessionState(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	raw, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	r.Body.Close()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := h.sessions.SetState(r.Context(), id, raw)
	metrics.RecordOperation("set_session_state", err)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) createBoost(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var payload struct {
		TaskType string `json:"taskType"`
	}
	_ = decodeJSON(r.Body, &payload)

	created, err := h.boosts.Create(r.Context(), id, payload.TaskType)
	metrics.RecordOperation("create_boost", err)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *handler) verifyBoost(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var payload struct {
		SessionID string `json:"sessionId"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	verified, err := h.boosts.Verify(r.Context(), id, payload.SessionID)
	metrics.RecordOperation("verify_boost", err)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, verified)
}

func (h *handler) createWithdrawal(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var payload struct {
		Wallet  string  `json:"wallet"`
		Amount  float64 `json:"amount"`
		Network string  `json:"network"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	created, err := h.withdrawals.Create(r.Context(), id, payload.Wallet, payload.Amount, payload.Network)
	metrics.RecordOperation("create_withdrawal", err)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *handler) completeWithdrawal(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var payload struct {
		SessionID string `json:"sessionId"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	completed, err := h.withdrawals.Complete(r.Context(), id, payload.SessionID)
	metrics.RecordOperation("complete_withdrawal", err)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"withdrawal": completed})
}

func (h *handler) getStats(w http.ResponseWriter, r *http.Request) {
	var overview snapshot.Overview
	err := h.ledger.View(r.Context(), func(snap *snapshot.Snapshot) error {
		overview = snapshot.BuildOverview(snap, 10)
		return nil
	})
	metrics.RecordOperation("get_stats", err)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	payload := map[string]any{
		"status": "ok",
		"uptime": time.Since(h.startedAt).Round(time.Second).String(),
	}
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
			payload["rssBytes"] = mem.RSS
		}
	}
	writeJSON(w, http.StatusOK, payload)
}

// writeServiceError maps the ledger error taxonomy onto HTTP statuses.
func (h *handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, sessions.ErrNotFound),
		errors.Is(err, boosts.ErrSessionNotFound),
		errors.Is(err, boosts.ErrBoostNotFound),
		errors.Is(err, withdrawals.ErrSessionNotFound),
		errors.Is(err, withdrawals.ErrWithdrawalNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, boosts.ErrNotOwner),
		errors.Is(err, withdrawals.ErrNotOwner):
		writeError(w, http.StatusForbidden, err)
	case errors.Is(err, withdrawals.ErrInvalidAmount),
		errors.Is(err, withdrawals.ErrMissingWallet):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, withdrawals.ErrInsufficientBalance):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, withdrawals.ErrAlreadyCompleted):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, storage.ErrPersistence):
		h.log.WithError(err).Error("persistence failure")
		writeError(w, http.StatusInternalServerError, errors.New("failed to persist state"))
	default:
		h.log.WithError(err).Error("unexpected error")
		writeError(w, http.StatusInternalServerError, errors.New("internal error"))
	}
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
