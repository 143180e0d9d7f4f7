package backend

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/GoSim-25-26J-441/profile-autotune/internal/profile"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type stubServer struct {
	lastRequest BenchmarkRequest
	lastPatch   map[string]any
	applyErr    error
}

func (s *stubServer) Benchmark(ctx context.Context, req BenchmarkRequest) (*BenchmarkResponse, error) {
	s.lastRequest = req
	resp := &BenchmarkResponse{Prompt: req.Prompt}
	for _, d := range req.Profiles {
		resp.Profiles = append(resp.Profiles, ProfileResult{
			Name:    d.Name,
			Samples: d.Samples,
			Runs: []ProfileRun{{
				LatencyMs: 88,
				Usage:     Usage{CompletionTokens: IntPtr(12)},
			}},
		})
	}
	return resp, nil
}

func (s *stubServer) ApplyConfiguration(ctx context.Context, patch map[string]any) error {
	s.lastPatch = patch
	return s.applyErr
}

func startBufconn(t *testing.T, impl Server) *GRPCClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterServer(srv, impl)
	go func() {
		_ = srv.Serve(lis)
	}()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("failed to dial bufconn: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return NewGRPCClient(conn)
}

func TestGRPCBenchmarkRoundTrip(t *testing.T) {
	stub := &stubServer{}
	client := startBufconn(t, stub)

	resp, err := client.Benchmark(context.Background(), BenchmarkRequest{
		Prompt: "why is the sky blue",
		Profiles: []profile.Descriptor{{
			Name:     "candidate",
			Samples:  3,
			Options:  map[string]any{"top_k": 40},
			Settings: map[string]any{"llm_speculative_enabled": true},
		}},
	})
	if err != nil {
		t.Fatalf("Benchmark error: %v", err)
	}

	if stub.lastRequest.Prompt != "why is the sky blue" || stub.lastRequest.Profiles[0].Samples != 3 {
		t.Fatalf("server saw unexpected request %+v", stub.lastRequest)
	}
	if stub.lastRequest.Profiles[0].Settings["llm_speculative_enabled"] != true {
		t.Fatalf("settings lost in transit: %v", stub.lastRequest.Profiles[0].Settings)
	}
	if len(resp.Profiles) != 1 || resp.Profiles[0].Runs[0].LatencyMs != 88 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if got := resp.Profiles[0].Runs[0].Usage.CompletionTokens; got == nil || *got != 12 {
		t.Fatalf("expected completion tokens 12, got %v", got)
	}
}

func TestGRPCApplyConfiguration(t *testing.T) {
	stub := &stubServer{}
	client := startBufconn(t, stub)

	if err := client.ApplyConfiguration(context.Background(), map[string]any{"llm_n_gpu_layers": 32}); err != nil {
		t.Fatalf("ApplyConfiguration error: %v", err)
	}
	if stub.lastPatch["llm_n_gpu_layers"] != float64(32) {
		t.Fatalf("unexpected patch %v", stub.lastPatch)
	}

	stub.applyErr = errors.New("read-only configuration")
	err := client.ApplyConfiguration(context.Background(), map[string]any{"llm_n_gpu_layers": 0})
	if status.Code(errors.Unwrap(err)) != codes.Internal {
		t.Fatalf("expected Internal status, got %v", err)
	}
}

func TestGRPCBenchmarkRequiresProfiles(t *testing.T) {
	client := startBufconn(t, &stubServer{})
	_, err := client.Benchmark(context.Background(), BenchmarkRequest{Prompt: "x"})
	if status.Code(errors.Unwrap(err)) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}
