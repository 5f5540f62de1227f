package bridgestatus

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/alfredjeanlab/walletd/internal/messenger"
	"github.com/alfredjeanlab/walletd/internal/model"
)

type fakeFetcher struct {
	mu    sync.Mutex
	calls []model.StatusRequest
	err   error
}

func (f *fakeFetcher) FetchStatus(_ context.Context, req model.StatusRequest) (model.StatusResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.err != nil {
		return model.StatusResponse{}, f.err
	}
	return model.StatusResponse{
		Status:   model.BridgeStatusPending,
		SrcChain: model.ChainStatus{ChainID: req.SrcChainID, TxHash: req.SrcTxHash},
	}, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func request(hash string) model.StatusRequest {
	return model.StatusRequest{
		BridgeID:    "hop",
		SrcTxHash:   hash,
		Bridge:      "hop",
		SrcChainID:  1,
		DestChainID: 10,
	}
}

func confirm(m *messenger.Messenger, hash string) {
	m.Publish(messenger.EventTransactionConfirmed, messenger.TransactionConfirmed{ID: "tx-" + hash, Hash: hash})
}

func TestFetchOnMatchingConfirmation(t *testing.T) {
	m := messenger.New()
	fetcher := &fakeFetcher{}
	w := New(m, fetcher, testLogger())
	defer w.Close()

	if err := w.StartWatching(request("0xabc")); err != nil {
		t.Fatalf("StartWatching: %v", err)
	}

	confirm(m, "0xother")
	w.Wait()
	if fetcher.callCount() != 0 {
		t.Fatalf("fetched on unrelated confirmation")
	}

	confirm(m, "0xabc")
	w.Wait()
	if fetcher.callCount() != 1 {
		t.Fatalf("fetch calls = %d, want 1", fetcher.callCount())
	}
	status, ok := w.Status("0xabc")
	if !ok || status.Status != model.BridgeStatusPending {
		t.Errorf("Status = %+v, %v", status, ok)
	}
}

func TestWatchingSameHashTwiceSubscribesOnce(t *testing.T) {
	m := messenger.New()
	fetcher := &fakeFetcher{}
	w := New(m, fetcher, testLogger())
	defer w.Close()

	for range 3 {
		if err := w.StartWatching(request("0xabc")); err != nil {
			t.Fatalf("StartWatching: %v", err)
		}
	}
	confirm(m, "0xabc")
	w.Wait()
	if fetcher.callCount() != 1 {
		t.Errorf("fetch calls = %d, want 1", fetcher.callCount())
	}
}

func TestConcurrentFetchesMerge(t *testing.T) {
	m := messenger.New()
	w := New(m, &fakeFetcher{}, testLogger())
	defer w.Close()

	hashes := []string{"0x1", "0x2", "0x3", "0x4", "0x5"}
	for _, h := range hashes {
		if err := w.StartWatching(request(h)); err != nil {
			t.Fatal(err)
		}
	}
	for _, h := range hashes {
		confirm(m, h)
	}
	w.Wait()

	statuses := w.Statuses()
	if len(statuses) != len(hashes) {
		t.Fatalf("statuses = %d entries, want %d", len(statuses), len(hashes))
	}
	for _, h := range hashes {
		if statuses[h].SrcChain.TxHash != h {
			t.Errorf("status[%s] = %+v", h, statuses[h])
		}
	}
}

func TestFetchErrorReported(t *testing.T) {
	m := messenger.New()
	var (
		mu     sync.Mutex
		failed []string
	)
	fetcher := &fakeFetcher{err: errors.New("HTTP 500")}
	w := New(m, fetcher, testLogger(), WithErrorHandler(func(req model.StatusRequest, err error) {
		mu.Lock()
		failed = append(failed, req.SrcTxHash)
		mu.Unlock()
	}))
	defer w.Close()

	if err := w.StartWatching(request("0xabc")); err != nil {
		t.Fatal(err)
	}
	confirm(m, "0xabc")
	w.Wait()

	if len(failed) != 1 || failed[0] != "0xabc" {
		t.Errorf("failed = %v", failed)
	}
	if _, ok := w.Status("0xabc"); ok {
		t.Error("failed fetch must not store a status")
	}
	if fetcher.callCount() != 1 {
		t.Errorf("fetch calls = %d, want 1 (no retry)", fetcher.callCount())
	}
}

func TestResetState(t *testing.T) {
	m := messenger.New()
	w := New(m, &fakeFetcher{}, testLogger())
	defer w.Close()

	var last State
	m.Subscribe(messenger.EventBridgeStatusStateChange, func(p any) {
		last, _ = messenger.Decode[State](p)
	})

	if err := w.StartWatching(request("0xabc")); err != nil {
		t.Fatal(err)
	}
	confirm(m, "0xabc")
	w.Wait()
	if len(last.TxStatuses) != 1 {
		t.Fatalf("state change = %+v", last)
	}

	w.ResetState()
	if len(w.Statuses()) != 0 {
		t.Error("statuses survived reset")
	}
	if last.TxStatuses == nil || len(last.TxStatuses) != 0 {
		t.Errorf("reset state change = %+v", last)
	}
	if !w.Watching("0xabc") {
		t.Error("reset dropped the subscription")
	}
}

func TestStartWatchingValidates(t *testing.T) {
	w := New(messenger.New(), &fakeFetcher{}, testLogger())
	defer w.Close()

	req := request("")
	if err := w.StartWatching(req); err == nil {
		t.Error("expected error for missing srcTxHash")
	}
}

func TestRegisteredAction(t *testing.T) {
	m := messenger.New()
	fetcher := &fakeFetcher{}
	w := New(m, fetcher, testLogger())
	defer w.Close()
	if err := w.Register(); err != nil {
		t.Fatal(err)
	}

	raw := []byte(`{"bridgeId":"hop","srcTxHash":"0xdef","bridge":"hop","srcChainId":1,"destChainId":137}`)
	if _, err := m.Call(context.Background(), messenger.ActionStartPollingForBridgeTxStatus, raw); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if !w.Watching("0xdef") {
		t.Fatal("action did not start watching")
	}
	confirm(m, "0xdef")
	w.Wait()
	if fetcher.callCount() != 1 {
		t.Errorf("fetch calls = %d", fetcher.callCount())
	}
}

func TestCloseUnsubscribes(t *testing.T) {
	m := messenger.New()
	fetcher := &fakeFetcher{}
	w := New(m, fetcher, testLogger())
	if err := w.StartWatching(request("0xabc")); err != nil {
		t.Fatal(err)
	}
	w.Close()
	confirm(m, "0xabc")
	w.Wait()
	if fetcher.callCount() != 0 {
		t.Error("fetched after Close")
	}
	if err := w.StartWatching(request("0xabc")); err == nil {
		t.Error("StartWatching after Close should fail")
	}
}
