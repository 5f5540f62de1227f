package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alfredjeanlab/walletd/internal/inactivity"
	"github.com/alfredjeanlab/walletd/internal/model"
)

const serviceName = "walletd.v1.WalletService"

// GRPCClient implements WalletClient using the gRPC transport.
type GRPCClient struct {
	conn *grpc.ClientConn
}

// NewGRPCClient connects to the given gRPC address and returns a client.
// When token is non-empty it is sent as a bearer token on every call.
func NewGRPCClient(addr, token string, opts ...grpc.DialOption) (*GRPCClient, error) {
	dialOpts := []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	if token != "" {
		dialOpts = append(dialOpts, grpc.WithUnaryInterceptor(bearerInterceptor(token)))
	}
	conn, err := grpc.NewClient(addr, append(dialOpts, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial: %w", err)
	}
	return &GRPCClient{conn: conn}, nil
}

func bearerInterceptor(token string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

// call invokes method and decodes the struct response into result.
func (c *GRPCClient) call(ctx context.Context, method string, in proto.Message, result any) error {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, "/"+serviceName+"/"+method, in, out); err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	data, err := json.Marshal(out.AsMap())
	if err != nil {
		return fmt.Errorf("encoding %s response: %w", method, err)
	}
	if err := json.Unmarshal(data, result); err != nil {
		return fmt.Errorf("decoding %s response: %w", method, err)
	}
	return nil
}

func (c *GRPCClient) Health(ctx context.Context) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.call(ctx, "Health", &emptypb.Empty{}, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

func (c *GRPCClient) GetState(ctx context.Context) (*model.AppState, error) {
	var st model.AppState
	if err := c.call(ctx, "GetState", &emptypb.Empty{}, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *GRPCClient) Lock(ctx context.Context) (bool, error) {
	return c.transition(ctx, "Lock")
}

func (c *GRPCClient) Unlock(ctx context.Context) (bool, error) {
	return c.transition(ctx, "Unlock")
}

func (c *GRPCClient) transition(ctx context.Context, method string) (bool, error) {
	var resp struct {
		Changed bool `json:"changed"`
	}
	if err := c.call(ctx, method, &emptypb.Empty{}, &resp); err != nil {
		return false, err
	}
	return resp.Changed, nil
}

func (c *GRPCClient) WaitForUnlock(ctx context.Context, showApprovalUI bool, timeout time.Duration) error {
	fields := map[string]any{"showApprovalUI": showApprovalUI}
	if timeout > 0 {
		fields["timeout"] = timeout.String()
	}
	req, err := structpb.NewStruct(fields)
	if err != nil {
		return err
	}
	return c.call(ctx, "AwaitUnlock", req, nil)
}

func (c *GRPCClient) RecordActivity(ctx context.Context) (*inactivity.State, error) {
	var st inactivity.State
	if err := c.call(ctx, "RecordActivity", &emptypb.Empty{}, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *GRPCClient) SetTimeout(ctx context.Context, minutes string) (*TimeoutResponse, error) {
	req, err := structpb.NewStruct(map[string]any{"minutes": minutes})
	if err != nil {
		return nil, err
	}
	var resp TimeoutResponse
	if err := c.call(ctx, "SetTimeout", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
