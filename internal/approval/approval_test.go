package approval

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alfredjeanlab/walletd/internal/messenger"
	"github.com/alfredjeanlab/walletd/internal/model"
)

func newTestController(t *testing.T) (*Controller, *messenger.Messenger) {
	t.Helper()
	m := messenger.New()
	return New(m, slog.New(slog.NewTextHandler(io.Discard, nil))), m
}

func unlockRequest(id string) model.ApprovalRequest {
	return model.ApprovalRequest{ID: id, Type: model.ApprovalTypeUnlock}
}

func TestAddAndAccept(t *testing.T) {
	c, m := newTestController(t)
	changes := 0
	m.Subscribe(messenger.EventApprovalStateChange, func(any) { changes++ })

	result, err := c.AddRequest(context.Background(), unlockRequest("req-1"))
	if err != nil {
		t.Fatalf("AddRequest: %v", err)
	}
	pending := c.List()
	if len(pending) != 1 || pending[0].ID != "req-1" || pending[0].Origin != model.OriginWallet {
		t.Fatalf("List() = %+v", pending)
	}

	if err := c.AcceptRequest("req-1"); err != nil {
		t.Fatalf("AcceptRequest: %v", err)
	}
	if err := <-result; err != nil {
		t.Errorf("result = %v, want nil", err)
	}
	if len(c.List()) != 0 {
		t.Error("request still pending after accept")
	}
	if changes != 2 {
		t.Errorf("state changes = %d, want 2", changes)
	}
}

func TestAcceptUnknown(t *testing.T) {
	c, _ := newTestController(t)
	if err := c.AcceptRequest("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDuplicateRejected(t *testing.T) {
	c, _ := newTestController(t)
	if _, err := c.AddRequest(context.Background(), unlockRequest("dup")); err != nil {
		t.Fatalf("AddRequest: %v", err)
	}
	if _, err := c.AddRequest(context.Background(), unlockRequest("dup")); !errors.Is(err, ErrDuplicate) {
		t.Errorf("err = %v, want ErrDuplicate", err)
	}
}

func TestReject(t *testing.T) {
	c, _ := newTestController(t)
	result, err := c.AddRequest(context.Background(), unlockRequest("r"))
	if err != nil {
		t.Fatalf("AddRequest: %v", err)
	}
	if err := c.RejectRequest("r", ""); err != nil {
		t.Fatalf("RejectRequest: %v", err)
	}
	if err := <-result; !errors.Is(err, ErrRejected) {
		t.Errorf("result = %v, want ErrRejected", err)
	}
}

func TestContextCancelResolves(t *testing.T) {
	c, _ := newTestController(t)
	ctx, cancel := context.WithCancel(context.Background())
	result, err := c.AddRequest(ctx, unlockRequest("c"))
	if err != nil {
		t.Fatalf("AddRequest: %v", err)
	}
	cancel()

	select {
	case err := <-result:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("result = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("request was not resolved by cancellation")
	}
	if _, ok := c.Get("c"); ok {
		t.Error("cancelled request still pending")
	}
}

func TestGeneratedID(t *testing.T) {
	c, _ := newTestController(t)
	if _, err := c.AddRequest(context.Background(), model.ApprovalRequest{Type: model.ApprovalTypeUnlock}); err != nil {
		t.Fatalf("AddRequest: %v", err)
	}
	if got := c.List(); len(got) != 1 || got[0].ID == "" {
		t.Errorf("expected a generated id, got %+v", got)
	}
	if _, err := c.AddRequest(context.Background(), model.ApprovalRequest{}); err == nil {
		t.Error("expected error for missing type")
	}
}

func TestMessengerActions(t *testing.T) {
	c, m := newTestController(t)
	if err := c.Register(); err != nil {
		t.Fatalf("Register: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := m.Call(context.Background(), messenger.ActionApprovalAddRequest, unlockRequest("via-messenger"))
		done <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := c.Get("via-messenger"); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("request never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if _, err := m.Call(context.Background(), messenger.ActionApprovalAcceptRequest, "via-messenger"); err != nil {
		t.Fatalf("accept via messenger: %v", err)
	}
	if err := <-done; err != nil {
		t.Errorf("addRequest action returned %v", err)
	}
}
