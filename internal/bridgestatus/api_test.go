package bridgestatus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alfredjeanlab/walletd/internal/model"
)

func TestHTTPFetcher_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/getTxStatus" {
			t.Errorf("path = %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("srcTxHash") != "0xabc" || q.Get("srcChainId") != "1" || q.Get("destChainId") != "10" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		if got := r.Header.Get(ClientIDHeader); got != "walletd" {
			t.Errorf("client id = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"COMPLETE","srcChain":{"chainId":1,"txHash":"0xabc"},"destChain":{"chainId":10,"txHash":"0xdef"}}`))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.URL+"/", "walletd")
	got, err := f.FetchStatus(context.Background(), request("0xabc"))
	if err != nil {
		t.Fatalf("FetchStatus: %v", err)
	}
	if got.Status != model.BridgeStatusComplete || got.DestChain == nil || got.DestChain.TxHash != "0xdef" {
		t.Errorf("got %+v", got)
	}
}

func TestHTTPFetcher_Errors(t *testing.T) {
	for _, tc := range []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"server error", http.StatusInternalServerError, "boom", "HTTP 500"},
		{"bad json", http.StatusOK, "{", "decoding"},
		{"unknown status", http.StatusOK, `{"status":"WAT","srcChain":{"chainId":1}}`, "invalid bridge status"},
		{"missing src chain", http.StatusOK, `{"status":"PENDING"}`, "srcChain"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := NewHTTPFetcher(srv.URL, "").FetchStatus(context.Background(), request("0xabc"))
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("err = %v, want containing %q", err, tc.wantErr)
			}
		})
	}
}
