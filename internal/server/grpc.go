package server

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "walletd.v1.WalletService"

const healthFullMethod = "/" + ServiceName + "/Health"

// WalletServiceServer is the gRPC surface of walletd. Messages are protobuf
// well-known types so the service needs no generated code: requests and
// responses are JSON-shaped structs.
type WalletServiceServer interface {
	Health(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetState(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Lock(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Unlock(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	// AwaitUnlock takes {"showApprovalUI": bool, "timeout": "30s"}.
	AwaitUnlock(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RecordActivity(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	// SetTimeout takes {"minutes": number|string}.
	SetTimeout(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// NewGRPCServer creates a gRPC server with standard interceptors,
// registers the WalletService and reflection, and returns the server
// ready to serve.
func NewGRPCServer(walletServer *WalletServer, authToken string) *grpc.Server {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			RecoveryInterceptor(walletServer.logger),
			LoggingInterceptor(walletServer.logger),
			AuthInterceptor(authToken),
		),
	)
	RegisterWalletServiceServer(srv, walletServer)
	reflection.Register(srv)
	return srv
}

// RegisterWalletServiceServer registers impl on s.
func RegisterWalletServiceServer(s grpc.ServiceRegistrar, impl WalletServiceServer) {
	s.RegisterService(&walletServiceDesc, impl)
}

var walletServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*WalletServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		emptyMethod("Health", WalletServiceServer.Health),
		emptyMethod("GetState", WalletServiceServer.GetState),
		emptyMethod("Lock", WalletServiceServer.Lock),
		emptyMethod("Unlock", WalletServiceServer.Unlock),
		structMethod("AwaitUnlock", WalletServiceServer.AwaitUnlock),
		emptyMethod("RecordActivity", WalletServiceServer.RecordActivity),
		structMethod("SetTimeout", WalletServiceServer.SetTimeout),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "walletd/v1/wallet.proto",
}

func emptyMethod(name string, call func(WalletServiceServer, context.Context, *emptypb.Empty) (*structpb.Struct, error)) grpc.MethodDesc {
	return unaryMethod(name, func() *emptypb.Empty { return new(emptypb.Empty) }, call)
}

func structMethod(name string, call func(WalletServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodDesc {
	return unaryMethod(name, func() *structpb.Struct { return new(structpb.Struct) }, call)
}

// unaryMethod builds the handler protoc-gen-go-grpc would generate.
func unaryMethod[Req any](name string, newReq func() Req, call func(WalletServiceServer, context.Context, Req) (*structpb.Struct, error)) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := newReq()
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(WalletServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(WalletServiceServer), ctx, req.(Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// toStruct converts a JSON-marshalable value to a structpb.Struct.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "marshal response: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, status.Errorf(codes.Internal, "unmarshal response: %v", err)
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "convert response: %v", err)
	}
	return out, nil
}

// Health implements WalletServiceServer.
func (s *WalletServer) Health(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return toStruct(map[string]string{"status": "ok"})
}

// GetState implements WalletServiceServer.
func (s *WalletServer) GetState(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return toStruct(s.app.State())
}

// Lock implements WalletServiceServer.
func (s *WalletServer) Lock(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return toStruct(map[string]bool{"unlocked": false, "changed": s.lock()})
}

// Unlock implements WalletServiceServer.
func (s *WalletServer) Unlock(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return toStruct(map[string]bool{"unlocked": true, "changed": s.locker.Unlock()})
}

// AwaitUnlock implements WalletServiceServer.
func (s *WalletServer) AwaitUnlock(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	show := fields["showApprovalUI"].GetBoolValue()
	var timeout time.Duration
	if v := fields["timeout"].GetStringValue(); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "invalid timeout: %v", err)
		}
		timeout = d
	}

	err := s.waitForUnlock(ctx, show, timeout)
	switch {
	case err == nil:
		return toStruct(map[string]bool{"unlocked": true})
	case isInputError(err):
		return nil, status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return nil, status.Error(codes.DeadlineExceeded, "timed out waiting for unlock")
	case errors.Is(err, context.Canceled):
		return nil, status.Error(codes.Canceled, "wait cancelled")
	}
	return nil, status.Error(codes.Internal, err.Error())
}

// RecordActivity implements WalletServiceServer.
func (s *WalletServer) RecordActivity(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if err := s.app.SetLastActiveTime(ctx); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return toStruct(s.app.Timer())
}

// SetTimeout implements WalletServiceServer.
func (s *WalletServer) SetTimeout(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	v, ok := req.GetFields()["minutes"]
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "minutes is required")
	}
	m, err := s.setTimeout(ctx, v.AsInterface())
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return toStruct(map[string]any{"timeoutMinutes": m, "timer": s.app.Timer()})
}
