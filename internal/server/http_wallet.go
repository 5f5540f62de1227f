package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/alfredjeanlab/walletd/internal/approval"
	"github.com/alfredjeanlab/walletd/internal/idgen"
	"github.com/alfredjeanlab/walletd/internal/messenger"
	"github.com/alfredjeanlab/walletd/internal/model"
	"github.com/alfredjeanlab/walletd/internal/store"
)

// resolveCategory accepts either an environment type ("popup") or a
// category name ("popupGasPollTokens").
func resolveCategory(s string) model.PollingCategory {
	if c := model.CategoryForEnvironment(s); c != "" {
		return c
	}
	return model.PollingCategory(s)
}

// handleListPollingTokens handles GET /v1/polling-tokens.
func (s *WalletServer) handleListPollingTokens(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.app.PollingTokens())
}

type pollingTokenRequest struct {
	Token    string `json:"token,omitempty"`
	Category string `json:"category"`
}

// handleAddPollingToken handles POST /v1/polling-tokens. An empty token
// is generated. Tokens for untracked categories are not an error; the
// response reports accepted=false.
func (s *WalletServer) handleAddPollingToken(w http.ResponseWriter, r *http.Request) {
	var req pollingTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Token == "" {
		token, err := idgen.PollingToken()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		req.Token = token
	}
	category := resolveCategory(req.Category)
	accepted := s.app.AddPollingToken(req.Token, category)
	writeJSON(w, http.StatusOK, map[string]any{
		"token":    req.Token,
		"category": category,
		"accepted": accepted,
	})
}

// handleRemovePollingToken handles DELETE /v1/polling-tokens/{category}/{token}.
func (s *WalletServer) handleRemovePollingToken(w http.ResponseWriter, r *http.Request) {
	category := resolveCategory(r.PathValue("category"))
	accepted := s.app.RemovePollingToken(r.PathValue("token"), category)
	writeJSON(w, http.StatusOK, map[string]any{"category": category, "accepted": accepted})
}

// handleClearPollingTokens handles DELETE /v1/polling-tokens.
func (s *WalletServer) handleClearPollingTokens(w http.ResponseWriter, _ *http.Request) {
	s.app.ClearPollingTokens()
	w.WriteHeader(http.StatusNoContent)
}

// handleListApprovals handles GET /v1/approvals.
func (s *WalletServer) handleListApprovals(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"approvals": s.approvals.List()})
}

// handleAcceptApproval handles POST /v1/approvals/{id}/accept.
func (s *WalletServer) handleAcceptApproval(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.approvals.AcceptRequest(id); err != nil {
		writeApprovalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "result": "accepted"})
}

// handleRejectApproval handles POST /v1/approvals/{id}/reject.
func (s *WalletServer) handleRejectApproval(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	// The body is optional.
	_ = json.NewDecoder(r.Body).Decode(&req)

	id := r.PathValue("id")
	if err := s.approvals.RejectRequest(id, req.Reason); err != nil {
		writeApprovalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "result": "rejected"})
}

func writeApprovalError(w http.ResponseWriter, err error) {
	if errors.Is(err, approval.ErrNotFound) {
		writeError(w, http.StatusNotFound, "approval request not found")
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

// handleWatchBridgeTx handles POST /v1/bridge/watch.
func (s *WalletServer) handleWatchBridgeTx(w http.ResponseWriter, r *http.Request) {
	var req model.StatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.bridge.StartWatching(req); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"srcTxHash": req.SrcTxHash, "watching": true})
}

// handleListBridgeStatuses handles GET /v1/bridge/statuses.
func (s *WalletServer) handleListBridgeStatuses(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"txStatuses": s.bridge.Statuses()})
}

// handleGetBridgeStatus handles GET /v1/bridge/statuses/{hash}.
func (s *WalletServer) handleGetBridgeStatus(w http.ResponseWriter, r *http.Request) {
	hash := r.PathValue("hash")
	st, ok := s.bridge.Status(hash)
	if !ok {
		writeError(w, http.StatusNotFound, "no status for "+hash)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleResetBridgeStatuses handles DELETE /v1/bridge/statuses.
func (s *WalletServer) handleResetBridgeStatuses(w http.ResponseWriter, _ *http.Request) {
	s.bridge.ResetState()
	w.WriteHeader(http.StatusNoContent)
}

// handleTransactionConfirmed handles POST /v1/events/transaction-confirmed,
// letting a transaction controller without NATS report confirmations.
func (s *WalletServer) handleTransactionConfirmed(w http.ResponseWriter, r *http.Request) {
	var tx messenger.TransactionConfirmed
	if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if tx.Hash == "" {
		writeError(w, http.StatusBadRequest, "hash is required")
		return
	}
	s.messenger.Publish(messenger.EventTransactionConfirmed, tx)
	w.WriteHeader(http.StatusAccepted)
}

// handleListEvents handles GET /v1/events.
func (s *WalletServer) handleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.EventFilter{Topic: q.Get("topic")}
	if v := q.Get("after"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid after")
			return
		}
		filter.AfterID = id
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = n
	}
	events, err := s.store.ListEvents(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if events == nil {
		events = []*model.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}
