package bridgestatus

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alfredjeanlab/walletd/internal/model"
)

// DefaultAPIURL is the public bridge API.
const DefaultAPIURL = "https://bridge.api.cx.metamask.io"

// ClientIDHeader identifies the calling client to the bridge API.
const ClientIDHeader = "X-Client-Id"

// HTTPFetcher queries the bridge API's getTxStatus endpoint.
type HTTPFetcher struct {
	baseURL  string
	clientID string
	client   *http.Client
}

// NewHTTPFetcher creates a fetcher. An empty baseURL uses DefaultAPIURL.
func NewHTTPFetcher(baseURL, clientID string) *HTTPFetcher {
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}
	return &HTTPFetcher{
		baseURL:  strings.TrimRight(baseURL, "/"),
		clientID: clientID,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

// FetchStatus implements Fetcher.
func (f *HTTPFetcher) FetchStatus(ctx context.Context, req model.StatusRequest) (model.StatusResponse, error) {
	var out model.StatusResponse

	q := url.Values{}
	q.Set("bridgeId", req.BridgeID)
	q.Set("srcTxHash", req.SrcTxHash)
	q.Set("bridge", req.Bridge)
	q.Set("srcChainId", strconv.FormatInt(req.SrcChainID, 10))
	q.Set("destChainId", strconv.FormatInt(req.DestChainID, 10))
	if req.QuoteID != "" {
		q.Set("requestId", req.QuoteID)
	}
	q.Set("refuel", strconv.FormatBool(req.Refuel))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/getTxStatus?"+q.Encode(), nil)
	if err != nil {
		return out, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if f.clientID != "" {
		httpReq.Header.Set(ClientIDHeader, f.clientID)
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return out, fmt.Errorf("fetching status for %s: %w", req.SrcTxHash, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return out, fmt.Errorf("bridge API error (HTTP %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("decoding status response: %w", err)
	}
	if err := validateResponse(out); err != nil {
		return model.StatusResponse{}, err
	}
	return out, nil
}

func validateResponse(r model.StatusResponse) error {
	if !r.Status.IsValid() {
		return fmt.Errorf("invalid bridge status %q", r.Status)
	}
	if r.SrcChain.ChainID == 0 {
		return fmt.Errorf("status response missing srcChain.chainId")
	}
	return nil
}
