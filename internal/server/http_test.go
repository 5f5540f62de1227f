package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alfredjeanlab/walletd/internal/messenger"
	"github.com/alfredjeanlab/walletd/internal/model"
)

func doRequest(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func TestHandleHealth(t *testing.T) {
	_, _, h := newTestServer(t)
	rec := doRequest(t, h, http.MethodGet, "/v1/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	decodeJSON(t, rec, &body)
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestHandleLockUnlockState(t *testing.T) {
	_, f, h := newTestServer(t)

	rec := doRequest(t, h, http.MethodPost, "/v1/unlock", nil)
	var resp map[string]bool
	decodeJSON(t, rec, &resp)
	if !resp["changed"] || !f.lock.IsUnlocked() {
		t.Fatalf("unlock response = %v", resp)
	}

	rec = doRequest(t, h, http.MethodGet, "/v1/state", nil)
	var st model.AppState
	decodeJSON(t, rec, &st)
	if !st.Unlocked {
		t.Error("state should report unlocked")
	}

	doRequest(t, h, http.MethodPost, "/v1/lock", nil)
	rec = doRequest(t, h, http.MethodPost, "/v1/lock", nil)
	resp = nil
	decodeJSON(t, rec, &resp)
	if resp["changed"] {
		t.Error("second lock should not report a change")
	}
	if f.lock.IsUnlocked() {
		t.Error("wallet should be locked")
	}
}

func TestHandleWaitForUnlock(t *testing.T) {
	_, f, h := newTestServer(t)

	rec := doRequest(t, h, http.MethodPost, "/v1/unlock/wait", waitRequest{Timeout: "20ms"})
	if rec.Code != http.StatusRequestTimeout {
		t.Fatalf("status = %d, want 408; body: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, h, http.MethodPost, "/v1/unlock/wait", waitRequest{Timeout: "later"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		done <- doRequest(t, h, http.MethodPost, "/v1/unlock/wait", waitRequest{ShowApprovalUI: true, Timeout: "5s"})
	}()
	deadline := time.Now().Add(time.Second)
	for len(f.approvals.List()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	pending := f.approvals.List()
	if len(pending) != 1 || pending[0].Type != model.ApprovalTypeUnlock {
		t.Fatalf("pending approvals = %+v", pending)
	}

	doRequest(t, h, http.MethodPost, "/v1/unlock", nil)
	rec = <-done
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", rec.Code, rec.Body.String())
	}

	deadline = time.Now().Add(time.Second)
	for len(f.approvals.List()) != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n := len(f.approvals.List()); n != 0 {
		t.Errorf("unlock approval still pending (%d)", n)
	}
}

func TestHandleWaitForUnlock_AlreadyUnlocked(t *testing.T) {
	_, f, h := newTestServer(t)
	f.lock.Unlock()
	req := httptest.NewRequest(http.MethodPost, "/v1/unlock/wait", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleSetTimeout(t *testing.T) {
	_, f, h := newTestServer(t)
	for _, tc := range []struct {
		name string
		body string
		want model.Minutes
	}{
		{"number", `{"minutes":15}`, 15},
		{"string", `{"minutes":"7.5"}`, 7.5},
		{"negative", `{"minutes":-3}`, 0},
		{"garbage", `{"minutes":"abc"}`, 0},
		{"null", `{"minutes":null}`, 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPut, "/v1/timeout", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d; body: %s", rec.Code, rec.Body.String())
			}
			if got := f.app.Timer().TimeoutMinutes; got != tc.want {
				t.Errorf("timeout = %v, want %v", got, tc.want)
			}
			if armed := f.app.Timer().Armed; armed != (tc.want > 0) {
				t.Errorf("armed = %v", armed)
			}
		})
	}
}

func TestHandleActivity(t *testing.T) {
	_, f, h := newTestServer(t)
	rec := doRequest(t, h, http.MethodPost, "/v1/activity", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if f.app.State().LastActiveAt == nil {
		t.Error("last active time not recorded")
	}
}

func TestHandleBrowserEnvironmentAndPopup(t *testing.T) {
	_, f, h := newTestServer(t)
	rec := doRequest(t, h, http.MethodPut, "/v1/browser-environment", map[string]string{"os": "linux"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing browser: status = %d", rec.Code)
	}
	rec = doRequest(t, h, http.MethodPut, "/v1/browser-environment", map[string]string{"os": "mac", "browser": "firefox"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", rec.Code, rec.Body.String())
	}
	if env := f.app.State().BrowserEnvironment; env["os"] != "mac" || env["browser"] != "firefox" {
		t.Errorf("browser environment = %v", env)
	}

	doRequest(t, h, http.MethodPut, "/v1/popup", map[string]int{"id": 42})
	if f.app.CurrentPopupID() != 42 {
		t.Errorf("popup id = %d", f.app.CurrentPopupID())
	}
}

func TestHandlePollingTokens(t *testing.T) {
	_, f, h := newTestServer(t)

	rec := doRequest(t, h, http.MethodPost, "/v1/polling-tokens", pollingTokenRequest{Token: "a", Category: "popup"})
	var added struct {
		Token    string                `json:"token"`
		Category model.PollingCategory `json:"category"`
		Accepted bool                  `json:"accepted"`
	}
	decodeJSON(t, rec, &added)
	if !added.Accepted || added.Category != model.PollingPopup {
		t.Fatalf("add = %+v", added)
	}

	rec = doRequest(t, h, http.MethodPost, "/v1/polling-tokens", pollingTokenRequest{Category: string(model.PollingFullScreen)})
	added.Token = ""
	decodeJSON(t, rec, &added)
	if !strings.HasPrefix(added.Token, "pt-") || !added.Accepted {
		t.Fatalf("generated token = %+v", added)
	}

	rec = doRequest(t, h, http.MethodPost, "/v1/polling-tokens", pollingTokenRequest{Token: "bg", Category: "background"})
	decodeJSON(t, rec, &added)
	if added.Accepted {
		t.Error("background token should be rejected")
	}

	doRequest(t, h, http.MethodPost, "/v1/polling-tokens", pollingTokenRequest{Token: "a", Category: "popup"})
	rec = doRequest(t, h, http.MethodDelete, "/v1/polling-tokens/popup/a", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("remove status = %d", rec.Code)
	}
	tokens := f.app.PollingTokens()
	if len(tokens[model.PollingPopup]) != 0 || len(tokens[model.PollingFullScreen]) != 1 {
		t.Fatalf("tokens after remove = %v", tokens)
	}

	rec = doRequest(t, h, http.MethodDelete, "/v1/polling-tokens", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("clear status = %d", rec.Code)
	}
	rec = doRequest(t, h, http.MethodGet, "/v1/polling-tokens", nil)
	var listed map[model.PollingCategory][]string
	decodeJSON(t, rec, &listed)
	for _, c := range model.PollingCategories {
		if len(listed[c]) != 0 {
			t.Errorf("%s not cleared: %v", c, listed[c])
		}
	}
}

func TestHandleApprovals(t *testing.T) {
	_, f, h := newTestServer(t)

	results := make(chan error, 2)
	for _, id := range []string{"a1", "a2"} {
		ch, err := f.approvals.AddRequest(context.Background(), model.ApprovalRequest{ID: id, Type: model.ApprovalTypeUnlock})
		if err != nil {
			t.Fatal(err)
		}
		go func() { results <- <-ch }()
	}

	rec := doRequest(t, h, http.MethodGet, "/v1/approvals", nil)
	var list struct {
		Approvals []model.ApprovalRequest `json:"approvals"`
	}
	decodeJSON(t, rec, &list)
	if len(list.Approvals) != 2 || list.Approvals[0].ID != "a1" {
		t.Fatalf("approvals = %+v", list.Approvals)
	}

	if rec := doRequest(t, h, http.MethodPost, "/v1/approvals/a1/accept", nil); rec.Code != http.StatusOK {
		t.Fatalf("accept status = %d", rec.Code)
	}
	if rec := doRequest(t, h, http.MethodPost, "/v1/approvals/a2/reject", map[string]string{"reason": "no"}); rec.Code != http.StatusOK {
		t.Fatalf("reject status = %d", rec.Code)
	}
	if rec := doRequest(t, h, http.MethodPost, "/v1/approvals/missing/accept", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown accept status = %d", rec.Code)
	}

	var accepted, rejected int
	for range 2 {
		if err := <-results; err == nil {
			accepted++
		} else {
			rejected++
		}
	}
	if accepted != 1 || rejected != 1 {
		t.Errorf("accepted=%d rejected=%d", accepted, rejected)
	}
}

func TestHandleBridgeWatch(t *testing.T) {
	_, f, h := newTestServer(t)

	rec := doRequest(t, h, http.MethodPost, "/v1/bridge/watch", model.StatusRequest{SrcTxHash: "0xabc"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid request status = %d", rec.Code)
	}

	req := model.StatusRequest{BridgeID: "across", SrcTxHash: "0xabc", Bridge: "across", SrcChainID: 1, DestChainID: 10}
	rec = doRequest(t, h, http.MethodPost, "/v1/bridge/watch", req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("watch status = %d; body: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, h, http.MethodPost, "/v1/events/transaction-confirmed", messenger.TransactionConfirmed{ID: "1", Hash: "0xabc"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("confirm status = %d", rec.Code)
	}
	f.bridge.Wait()

	rec = doRequest(t, h, http.MethodGet, "/v1/bridge/statuses/0xabc", nil)
	var st model.StatusResponse
	decodeJSON(t, rec, &st)
	if st.Status != model.BridgeStatusComplete || st.SrcChain.TxHash != "0xabc" {
		t.Fatalf("status = %+v", st)
	}

	if rec := doRequest(t, h, http.MethodDelete, "/v1/bridge/statuses", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("reset status = %d", rec.Code)
	}
	if rec := doRequest(t, h, http.MethodGet, "/v1/bridge/statuses/0xabc", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("after reset status = %d", rec.Code)
	}
}

func TestHandleTransactionConfirmed_RequiresHash(t *testing.T) {
	_, _, h := newTestServer(t)
	rec := doRequest(t, h, http.MethodPost, "/v1/events/transaction-confirmed", map[string]string{"id": "1"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestHandleListEvents(t *testing.T) {
	_, f, h := newTestServer(t)
	f.messenger.Publish(messenger.EventTransactionConfirmed, messenger.TransactionConfirmed{Hash: "0x1"})
	f.messenger.Publish(messenger.EventTransactionConfirmed, messenger.TransactionConfirmed{Hash: "0x2"})

	rec := doRequest(t, h, http.MethodGet, "/v1/events?topic="+messenger.EventTransactionConfirmed+"&limit=1", nil)
	var resp struct {
		Events []model.Event `json:"events"`
	}
	decodeJSON(t, rec, &resp)
	if len(resp.Events) != 1 || !strings.Contains(string(resp.Events[0].Payload), "0x1") {
		t.Fatalf("events = %+v", resp.Events)
	}

	after := resp.Events[0].ID
	rec = doRequest(t, h, http.MethodGet, "/v1/events?topic="+messenger.EventTransactionConfirmed+"&after="+strconv.FormatInt(after, 10), nil)
	resp.Events = nil
	decodeJSON(t, rec, &resp)
	if len(resp.Events) != 1 || !strings.Contains(string(resp.Events[0].Payload), "0x2") {
		t.Fatalf("events after %d = %+v", after, resp.Events)
	}

	if rec := doRequest(t, h, http.MethodGet, "/v1/events?limit=-1", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad limit status = %d", rec.Code)
	}
}

func TestHTTPRequiresToken(t *testing.T) {
	srv, _, _ := newTestServer(t)
	h := srv.NewHTTPHandler("secret")
	if rec := doRequest(t, h, http.MethodGet, "/v1/state", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if rec := doRequest(t, h, http.MethodGet, "/v1/health", nil); rec.Code != http.StatusOK {
		t.Fatalf("health status = %d", rec.Code)
	}
}
