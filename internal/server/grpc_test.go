package server

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// dialBufconn serves ws over an in-memory listener and returns a client
// connection to it.
func dialBufconn(t *testing.T, ws *WalletServer, authToken string) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := NewGRPCServer(ws, authToken)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("grpc.NewClient: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func invoke(ctx context.Context, conn *grpc.ClientConn, method string, in any) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	err := conn.Invoke(ctx, "/"+ServiceName+"/"+method, in, out)
	return out, err
}

func TestGRPC_HealthAndState(t *testing.T) {
	ws, _, _ := newTestServer(t)
	conn := dialBufconn(t, ws, "")
	ctx := context.Background()

	health, err := invoke(ctx, conn, "Health", &emptypb.Empty{})
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if got := health.Fields["status"].GetStringValue(); got != "ok" {
		t.Errorf("status = %q, want ok", got)
	}

	st, err := invoke(ctx, conn, "GetState", &emptypb.Empty{})
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if st.Fields["isUnlocked"].GetBoolValue() {
		t.Error("expected a locked wallet")
	}
}

func TestGRPC_LockUnlock(t *testing.T) {
	ws, f, _ := newTestServer(t)
	conn := dialBufconn(t, ws, "")
	ctx := context.Background()

	resp, err := invoke(ctx, conn, "Unlock", &emptypb.Empty{})
	if err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if !resp.Fields["changed"].GetBoolValue() || !f.lock.IsUnlocked() {
		t.Fatal("expected unlock transition")
	}
	resp, err = invoke(ctx, conn, "Lock", &emptypb.Empty{})
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if !resp.Fields["changed"].GetBoolValue() || f.lock.IsUnlocked() {
		t.Fatal("expected lock transition")
	}
}

func TestGRPC_AwaitUnlock(t *testing.T) {
	ws, f, _ := newTestServer(t)
	conn := dialBufconn(t, ws, "")
	ctx := context.Background()

	req, _ := structpb.NewStruct(map[string]any{"timeout": "20ms"})
	_, err := invoke(ctx, conn, "AwaitUnlock", req)
	if status.Code(err) != codes.DeadlineExceeded {
		t.Fatalf("code = %v, want DeadlineExceeded", status.Code(err))
	}

	req, _ = structpb.NewStruct(map[string]any{"timeout": "5s"})
	done := make(chan error, 1)
	go func() {
		_, err := invoke(ctx, conn, "AwaitUnlock", req)
		done <- err
	}()
	deadline := time.Now().Add(time.Second)
	for f.app.State().WaitingForUnlock == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	f.lock.Unlock()
	if err := <-done; err != nil {
		t.Fatalf("AwaitUnlock after unlock: %v", err)
	}

	bad, _ := structpb.NewStruct(map[string]any{"timeout": "soon"})
	if _, err := invoke(ctx, conn, "AwaitUnlock", bad); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("code = %v, want InvalidArgument", status.Code(err))
	}
}

func TestGRPC_SetTimeout(t *testing.T) {
	ws, f, _ := newTestServer(t)
	conn := dialBufconn(t, ws, "")
	ctx := context.Background()

	for _, tc := range []struct {
		name  string
		value any
		want  float64
	}{
		{"number", 5.0, 5},
		{"numeric string", "2.5", 2.5},
		{"malformed", "soon", 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			req, err := structpb.NewStruct(map[string]any{"minutes": tc.value})
			if err != nil {
				t.Fatal(err)
			}
			resp, err := invoke(ctx, conn, "SetTimeout", req)
			if err != nil {
				t.Fatalf("SetTimeout: %v", err)
			}
			if got := resp.Fields["timeoutMinutes"].GetNumberValue(); got != tc.want {
				t.Errorf("timeoutMinutes = %v, want %v", got, tc.want)
			}
			if got := float64(f.app.Timer().TimeoutMinutes); got != tc.want {
				t.Errorf("timer timeout = %v, want %v", got, tc.want)
			}
		})
	}

	if _, err := invoke(ctx, conn, "SetTimeout", &structpb.Struct{}); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("missing minutes: code = %v", status.Code(err))
	}
}

func TestGRPC_Auth(t *testing.T) {
	ws, _, _ := newTestServer(t)
	conn := dialBufconn(t, ws, "secret")
	ctx := context.Background()

	if _, err := invoke(ctx, conn, "Health", &emptypb.Empty{}); err != nil {
		t.Fatalf("Health should be exempt: %v", err)
	}
	if _, err := invoke(ctx, conn, "GetState", &emptypb.Empty{}); status.Code(err) != codes.Unauthenticated {
		t.Fatalf("code = %v, want Unauthenticated", status.Code(err))
	}
	authed := metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer secret")
	if _, err := invoke(authed, conn, "GetState", &emptypb.Empty{}); err != nil {
		t.Fatalf("GetState with token: %v", err)
	}
}

func TestGRPC_RecordActivity(t *testing.T) {
	ws, f, _ := newTestServer(t)
	conn := dialBufconn(t, ws, "")
	if _, err := invoke(context.Background(), conn, "RecordActivity", &emptypb.Empty{}); err != nil {
		t.Fatalf("RecordActivity: %v", err)
	}
	if f.app.State().LastActiveAt == nil {
		t.Fatal("expected last active time to be recorded")
	}
}
