// Package handlers implements the trigger endpoints. Every mutating handler
// checks the shared secret before causing any side effect.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/miclabs/posthunter/internal/generate"
	"github.com/miclabs/posthunter/internal/knowledge"
	"github.com/miclabs/posthunter/internal/models"
	"github.com/miclabs/posthunter/internal/monitor"
	"github.com/miclabs/posthunter/internal/orchestrator"
	"github.com/miclabs/posthunter/internal/patterns"
	"github.com/miclabs/posthunter/internal/pdca"
	"github.com/miclabs/posthunter/internal/stock"
)

type ctxKey string

const requestIDKey ctxKey = "request_id"

// WithRequestID stores the request id on the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the request id, or "" when unset.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// Handlers bundles the trigger endpoints' dependencies.
type Handlers struct {
	runner   *orchestrator.Runner
	stock    *stock.Manager
	monitor  *monitor.Monitor
	learner  *patterns.Learner
	analyzer *pdca.Analyzer
	store    knowledge.Store
	secret   string // empty disables the check
	lowFloor int
}

// New builds the handler set.
func New(
	runner *orchestrator.Runner,
	stockMgr *stock.Manager,
	mon *monitor.Monitor,
	learner *patterns.Learner,
	analyzer *pdca.Analyzer,
	store knowledge.Store,
	secret string,
	lowFloor int,
) *Handlers {
	return &Handlers{
		runner:   runner,
		stock:    stockMgr,
		monitor:  mon,
		learner:  learner,
		analyzer: analyzer,
		store:    store,
		secret:   secret,
		lowFloor: lowFloor,
	}
}

// authorized checks the shared secret from the body field or bearer header.
func (h *Handlers) authorized(r *http.Request, bodySecret string) bool {
	if h.secret == "" {
		return true
	}
	if bodySecret == h.secret {
		return true
	}
	return r.Header.Get("Authorization") == "Bearer "+h.secret
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

type postRequest struct {
	DryRun  bool   `json:"dryRun"`
	Account string `json:"account,omitempty"`
	Secret  string `json:"secret,omitempty"`
}

// AutomationPost runs the posting orchestrator for one account or all.
func (h *Handlers) AutomationPost(w http.ResponseWriter, r *http.Request) {
	var req postRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if !h.authorized(r, req.Secret) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var res orchestrator.RunResult
	if req.Account != "" {
		var ok bool
		res, ok = h.runner.RunOne(r.Context(), req.Account, req.DryRun)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown account "+req.Account)
			return
		}
	} else {
		res = h.runner.RunAll(r.Context(), req.DryRun)
	}

	if res.Paused {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"paused":  true,
			"message": "automation is paused",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":       res.Success,
		"results":       res.Results,
		"processing_ms": res.Duration.Milliseconds(),
	})
}

type accountStatus struct {
	Account string `json:"account"`
	Stock   int    `json:"stock"`
	IsLow   bool   `json:"is_low"`
}

// AutomationStatus reports stock levels per account; read-only, no secret.
func (h *Handlers) AutomationStatus(w http.ResponseWriter, r *http.Request) {
	levels, err := h.stock.Levels(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	statuses := make([]accountStatus, 0, len(h.runner.Accounts()))
	for _, account := range h.runner.Accounts() {
		n := levels[account.ID]
		statuses = append(statuses, accountStatus{
			Account: account.ID,
			Stock:   n,
			IsLow:   n < h.lowFloor,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": statuses})
}

type refillRequest struct {
	Account string `json:"account,omitempty"`
	Secret  string `json:"secret,omitempty"`
}

// StockRefill tops up one account or all accounts to the stock floor.
func (h *Handlers) StockRefill(w http.ResponseWriter, r *http.Request) {
	var req refillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if !h.authorized(r, req.Secret) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	accounts := h.runner.Accounts()
	if req.Account != "" {
		found := false
		for _, a := range accounts {
			if a.ID == req.Account {
				accounts = []models.Account{a}
				found = true
				break
			}
		}
		if !found {
			writeError(w, http.StatusBadRequest, "unknown account "+req.Account)
			return
		}
	}

	results, err := h.stock.RefillAll(r.Context(), accounts, generate.Input{})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	// Success mirrors a posting run: at least one account refilled cleanly.
	success := false
	for _, res := range results {
		if res.Error == "" {
			success = true
			break
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": success, "results": results})
}

// MonitorSweep runs one engagement sweep and recomputes winning patterns.
func (h *Handlers) MonitorSweep(w http.ResponseWriter, r *http.Request) {
	var req postRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if !h.authorized(r, req.Secret) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	sweep, err := h.monitor.Sweep(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	snap, err := h.learner.Recompute(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"sweep":     sweep,
		"patterns":  snap.Patterns,
		"top_posts": snap.TopPosts,
	})
}

// PDCAReport returns the latest stored report, running the analyzer when
// none exists yet.
func (h *Handlers) PDCAReport(w http.ResponseWriter, r *http.Request) {
	if data, err := h.store.Read(r.Context(), knowledge.KeyPDCAReport); err == nil {
		w.WriteHeader(http.StatusOK)
		w.Write(data)
		return
	}

	report, err := h.analyzer.Analyze(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Health is the liveness probe.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// NotFound is the JSON 404 handler.
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeError(w, http.StatusNotFound, "not found")
}
