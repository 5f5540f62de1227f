package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"
)

// NewHTTPHandler returns an http.Handler with all routes registered.
// When authToken is non-empty, requests (except GET /v1/health) must include
// a valid Authorization: Bearer <token> header.
func (s *WalletServer) NewHTTPHandler(authToken string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.HandleFunc("GET /v1/state", s.handleGetState)
	mux.HandleFunc("POST /v1/lock", s.handleLock)
	mux.HandleFunc("POST /v1/unlock", s.handleUnlock)
	mux.HandleFunc("POST /v1/unlock/wait", s.handleWaitForUnlock)
	mux.HandleFunc("POST /v1/activity", s.handleActivity)
	mux.HandleFunc("PUT /v1/timeout", s.handleSetTimeout)
	mux.HandleFunc("PUT /v1/browser-environment", s.handleSetBrowserEnvironment)
	mux.HandleFunc("PUT /v1/popup", s.handleSetPopup)
	mux.HandleFunc("GET /v1/polling-tokens", s.handleListPollingTokens)
	mux.HandleFunc("POST /v1/polling-tokens", s.handleAddPollingToken)
	mux.HandleFunc("DELETE /v1/polling-tokens", s.handleClearPollingTokens)
	mux.HandleFunc("DELETE /v1/polling-tokens/{category}/{token}", s.handleRemovePollingToken)
	mux.HandleFunc("GET /v1/approvals", s.handleListApprovals)
	mux.HandleFunc("POST /v1/approvals/{id}/accept", s.handleAcceptApproval)
	mux.HandleFunc("POST /v1/approvals/{id}/reject", s.handleRejectApproval)
	mux.HandleFunc("POST /v1/bridge/watch", s.handleWatchBridgeTx)
	mux.HandleFunc("GET /v1/bridge/statuses", s.handleListBridgeStatuses)
	mux.HandleFunc("GET /v1/bridge/statuses/{hash}", s.handleGetBridgeStatus)
	mux.HandleFunc("DELETE /v1/bridge/statuses", s.handleResetBridgeStatuses)
	mux.HandleFunc("POST /v1/events/transaction-confirmed", s.handleTransactionConfirmed)
	mux.HandleFunc("GET /v1/events", s.handleListEvents)
	mux.HandleFunc("GET /v1/events/stream", s.handleEventStream)
	return RequestLogger(s.logger, AuthMiddleware(authToken, mux))
}

// handleHealth handles GET /v1/health.
func (s *WalletServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleGetState handles GET /v1/state.
func (s *WalletServer) handleGetState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.app.State())
}

// handleLock handles POST /v1/lock.
func (s *WalletServer) handleLock(w http.ResponseWriter, _ *http.Request) {
	changed := s.lock()
	writeJSON(w, http.StatusOK, map[string]bool{"unlocked": false, "changed": changed})
}

// handleUnlock handles POST /v1/unlock.
func (s *WalletServer) handleUnlock(w http.ResponseWriter, _ *http.Request) {
	changed := s.locker.Unlock()
	writeJSON(w, http.StatusOK, map[string]bool{"unlocked": true, "changed": changed})
}

// waitRequest is the body of POST /v1/unlock/wait. Timeout is a Go
// duration string; empty waits until the client disconnects.
type waitRequest struct {
	ShowApprovalUI bool   `json:"showApprovalUI"`
	Timeout        string `json:"timeout,omitempty"`
}

// handleWaitForUnlock handles POST /v1/unlock/wait.
func (s *WalletServer) handleWaitForUnlock(w http.ResponseWriter, r *http.Request) {
	var req waitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	var timeout time.Duration
	if req.Timeout != "" {
		d, err := time.ParseDuration(req.Timeout)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid timeout: "+err.Error())
			return
		}
		timeout = d
	}

	err := s.waitForUnlock(r.Context(), req.ShowApprovalUI, timeout)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]bool{"unlocked": true})
	case isInputError(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case r.Context().Err() != nil:
		// Client went away.
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusRequestTimeout, "timed out waiting for unlock")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// handleActivity handles POST /v1/activity.
func (s *WalletServer) handleActivity(w http.ResponseWriter, r *http.Request) {
	if err := s.app.SetLastActiveTime(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.app.Timer())
}

// handleSetTimeout handles PUT /v1/timeout. The minutes field may be a
// number or a numeric string.
func (s *WalletServer) handleSetTimeout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Minutes any `json:"minutes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	m, err := s.setTimeout(r.Context(), req.Minutes)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"timeoutMinutes": m, "timer": s.app.Timer()})
}

// handleSetBrowserEnvironment handles PUT /v1/browser-environment.
func (s *WalletServer) handleSetBrowserEnvironment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OS      string `json:"os"`
		Browser string `json:"browser"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.OS == "" || req.Browser == "" {
		writeError(w, http.StatusBadRequest, "os and browser are required")
		return
	}
	if err := s.app.SetBrowserEnvironment(r.Context(), req.OS, req.Browser); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.app.State())
}

// handleSetPopup handles PUT /v1/popup.
func (s *WalletServer) handleSetPopup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID int `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	s.app.SetCurrentPopupID(req.ID)
	writeJSON(w, http.StatusOK, map[string]int{"currentPopupId": s.app.CurrentPopupID()})
}

// writeJSON marshals data as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
