package backend

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the gRPC service carrying the backend contract. Messages
// are google.protobuf.Struct values holding the same JSON documents as the
// HTTP transport, so no generated stubs are needed on either side.
const ServiceName = "autotune.backend.v1.Backend"

const (
	benchmarkMethod = "/" + ServiceName + "/Benchmark"
	applyMethod     = "/" + ServiceName + "/ApplyConfiguration"
)

// Server is implemented by anything that can serve the backend contract.
// Every Client satisfies it.
type Server interface {
	Benchmark(ctx context.Context, req BenchmarkRequest) (*BenchmarkResponse, error)
	ApplyConfiguration(ctx context.Context, patch map[string]any) error
}

// GRPCClient reaches the backend over a gRPC connection.
type GRPCClient struct {
	conn grpc.ClientConnInterface
}

// NewGRPCClient wraps an established connection.
func NewGRPCClient(conn grpc.ClientConnInterface) *GRPCClient {
	return &GRPCClient{conn: conn}
}

func (c *GRPCClient) Benchmark(ctx context.Context, req BenchmarkRequest) (*BenchmarkResponse, error) {
	if len(req.Profiles) > MaxProfilesPerRequest {
		return nil, fmt.Errorf("too many profiles in one request: %d (maximum %d)", len(req.Profiles), MaxProfilesPerRequest)
	}
	in, err := toStruct(req)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, benchmarkMethod, in, out); err != nil {
		return nil, fmt.Errorf("benchmark rpc failed: %w", err)
	}
	var resp BenchmarkResponse
	if err := fromStruct(out, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *GRPCClient) ApplyConfiguration(ctx context.Context, patch map[string]any) error {
	in, err := toStruct(patch)
	if err != nil {
		return err
	}
	if err := c.conn.Invoke(ctx, applyMethod, in, new(structpb.Struct)); err != nil {
		return fmt.Errorf("apply configuration rpc failed: %w", err)
	}
	return nil
}

// RegisterServer exposes impl on s under ServiceName.
func RegisterServer(s grpc.ServiceRegistrar, impl Server) {
	s.RegisterService(&serviceDesc, impl)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Benchmark", Handler: benchmarkHandler},
		{MethodName: "ApplyConfiguration", Handler: applyHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "autotune/backend/v1/backend.proto",
}

func benchmarkHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	handler := func(ctx context.Context, req any) (any, error) {
		var breq BenchmarkRequest
		if err := fromStruct(req.(*structpb.Struct), &breq); err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		if len(breq.Profiles) == 0 {
			return nil, status.Error(codes.InvalidArgument, "at least one profile is required")
		}
		resp, err := srv.(Server).Benchmark(ctx, breq)
		if err != nil {
			return nil, toStatus(err)
		}
		if resp == nil {
			resp = &BenchmarkResponse{Prompt: breq.Prompt}
		}
		return toStruct(resp)
	}
	if interceptor == nil {
		return handler(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: benchmarkMethod}
	return interceptor(ctx, in, info, handler)
}

func applyHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	handler := func(ctx context.Context, req any) (any, error) {
		patch := req.(*structpb.Struct).AsMap()
		if err := srv.(Server).ApplyConfiguration(ctx, patch); err != nil {
			return nil, toStatus(err)
		}
		return structpb.NewStruct(map[string]any{"status": "ok"})
	}
	if interceptor == nil {
		return handler(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: applyMethod}
	return interceptor(ctx, in, info, handler)
}

func toStatus(err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(codes.Internal, err.Error())
}

func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("failed to convert message: %w", err)
	}
	return out, nil
}

func fromStruct(s *structpb.Struct, out any) error {
	data, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to convert message: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode message: %w", err)
	}
	return nil
}
