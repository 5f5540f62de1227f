package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alfredjeanlab/walletd/internal/inactivity"
	"github.com/alfredjeanlab/walletd/internal/model"
)

const userAgent = "walletd-cli"

// maxErrorBody caps how much of a failed response ends up in an APIError.
const maxErrorBody = 4 << 10

// HTTPClient talks to the daemon's JSON API. Besides WalletClient it
// covers the polling, approval, bridge and event endpoints, which are
// HTTP-only.
type HTTPClient struct {
	baseURL string
	token   string
	hc      *http.Client
}

// NewHTTPClient targets baseURL, e.g. "http://localhost:8080". A non-empty
// token is sent as a bearer token. Requests have no client-side deadline
// since unlock waits are long-polls; bound them with ctx.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		hc:      &http.Client{},
	}
}

func (c *HTTPClient) Close() error { return nil }

// APIError is a non-2xx answer from the daemon.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// IsStatus reports whether err is an APIError with the given status code.
func IsStatus(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}

// call sends body (if any) and decodes the reply into a T.
func call[T any](ctx context.Context, c *HTTPClient, method, path string, body any) (T, error) {
	var out T
	err := c.send(ctx, method, path, body, &out)
	return out, err
}

func (c *HTTPClient) send(ctx context.Context, method, path string, body, out any) error {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding %s %s: %w", method, path, err)
		}
		payload = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decoding %s %s: %w", method, path, err)
	}
	return nil
}

// decodeAPIError prefers the {"error": "..."} body the daemon writes and
// falls back to the raw text.
func decodeAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		apiErr.Message = body.Error
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

func (c *HTTPClient) Health(ctx context.Context) (string, error) {
	resp, err := call[struct {
		Status string `json:"status"`
	}](ctx, c, http.MethodGet, "/v1/health", nil)
	return resp.Status, err
}

func (c *HTTPClient) GetState(ctx context.Context) (*model.AppState, error) {
	st, err := call[model.AppState](ctx, c, http.MethodGet, "/v1/state", nil)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

type changedResponse struct {
	Changed bool `json:"changed"`
}

func (c *HTTPClient) Lock(ctx context.Context) (bool, error) {
	resp, err := call[changedResponse](ctx, c, http.MethodPost, "/v1/lock", nil)
	return resp.Changed, err
}

func (c *HTTPClient) Unlock(ctx context.Context) (bool, error) {
	resp, err := call[changedResponse](ctx, c, http.MethodPost, "/v1/unlock", nil)
	return resp.Changed, err
}

// WaitForUnlock returns an APIError with status 408 when the server-side
// timeout elapses first.
func (c *HTTPClient) WaitForUnlock(ctx context.Context, showApprovalUI bool, timeout time.Duration) error {
	req := struct {
		ShowApprovalUI bool   `json:"showApprovalUI"`
		Timeout        string `json:"timeout,omitempty"`
	}{ShowApprovalUI: showApprovalUI}
	if timeout > 0 {
		req.Timeout = timeout.String()
	}
	return c.send(ctx, http.MethodPost, "/v1/unlock/wait", req, nil)
}

func (c *HTTPClient) RecordActivity(ctx context.Context) (*inactivity.State, error) {
	st, err := call[inactivity.State](ctx, c, http.MethodPost, "/v1/activity", nil)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *HTTPClient) SetTimeout(ctx context.Context, minutes string) (*TimeoutResponse, error) {
	resp, err := call[TimeoutResponse](ctx, c, http.MethodPut, "/v1/timeout", map[string]string{"minutes": minutes})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) ListPollingTokens(ctx context.Context) (model.PollingTokens, error) {
	return call[model.PollingTokens](ctx, c, http.MethodGet, "/v1/polling-tokens", nil)
}

// AddPollingToken files token under category, which may be an environment
// type or a category name. The server generates a token when it is empty.
func (c *HTTPClient) AddPollingToken(ctx context.Context, token, category string) (*AddPollingTokenResponse, error) {
	resp, err := call[AddPollingTokenResponse](ctx, c, http.MethodPost, "/v1/polling-tokens",
		map[string]string{"token": token, "category": category})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// RemovePollingToken drops every copy of token from category.
func (c *HTTPClient) RemovePollingToken(ctx context.Context, token, category string) (bool, error) {
	path := "/v1/polling-tokens/" + url.PathEscape(category) + "/" + url.PathEscape(token)
	resp, err := call[struct {
		Accepted bool `json:"accepted"`
	}](ctx, c, http.MethodDelete, path, nil)
	return resp.Accepted, err
}

func (c *HTTPClient) ClearPollingTokens(ctx context.Context) error {
	return c.send(ctx, http.MethodDelete, "/v1/polling-tokens", nil, nil)
}

func (c *HTTPClient) ListApprovals(ctx context.Context) ([]model.ApprovalRequest, error) {
	resp, err := call[struct {
		Approvals []model.ApprovalRequest `json:"approvals"`
	}](ctx, c, http.MethodGet, "/v1/approvals", nil)
	return resp.Approvals, err
}

func approvalPath(id, action string) string {
	return "/v1/approvals/" + url.PathEscape(id) + "/" + action
}

func (c *HTTPClient) AcceptApproval(ctx context.Context, id string) error {
	return c.send(ctx, http.MethodPost, approvalPath(id, "accept"), nil, nil)
}

func (c *HTTPClient) RejectApproval(ctx context.Context, id, reason string) error {
	var body any
	if reason != "" {
		body = map[string]string{"reason": reason}
	}
	return c.send(ctx, http.MethodPost, approvalPath(id, "reject"), body, nil)
}

func (c *HTTPClient) WatchBridgeTx(ctx context.Context, req model.StatusRequest) error {
	return c.send(ctx, http.MethodPost, "/v1/bridge/watch", req, nil)
}

func (c *HTTPClient) BridgeStatuses(ctx context.Context) (map[string]model.StatusResponse, error) {
	resp, err := call[struct {
		TxStatuses map[string]model.StatusResponse `json:"txStatuses"`
	}](ctx, c, http.MethodGet, "/v1/bridge/statuses", nil)
	return resp.TxStatuses, err
}

func (c *HTTPClient) BridgeStatus(ctx context.Context, srcTxHash string) (*model.StatusResponse, error) {
	st, err := call[model.StatusResponse](ctx, c, http.MethodGet, "/v1/bridge/statuses/"+url.PathEscape(srcTxHash), nil)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *HTTPClient) ResetBridgeStatuses(ctx context.Context) error {
	return c.send(ctx, http.MethodDelete, "/v1/bridge/statuses", nil, nil)
}

// ConfirmTransaction reports a confirmed transaction, which may finish a
// bridge watch.
func (c *HTTPClient) ConfirmTransaction(ctx context.Context, tx model.TransactionMeta) error {
	return c.send(ctx, http.MethodPost, "/v1/events/transaction-confirmed", tx, nil)
}

func (c *HTTPClient) ListEvents(ctx context.Context, req ListEventsRequest) ([]*model.Event, error) {
	q := url.Values{}
	if req.Topic != "" {
		q.Set("topic", req.Topic)
	}
	if req.AfterID > 0 {
		q.Set("after", strconv.FormatInt(req.AfterID, 10))
	}
	if req.Limit > 0 {
		q.Set("limit", strconv.Itoa(req.Limit))
	}
	path := "/v1/events"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	resp, err := call[struct {
		Events []*model.Event `json:"events"`
	}](ctx, c, http.MethodGet, path, nil)
	return resp.Events, err
}
