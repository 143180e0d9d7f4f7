package tuned

import (
	"context"
	"errors"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/GoSim-25-26J-441/profile-autotune/internal/backend"
	"github.com/GoSim-25-26J-441/profile-autotune/internal/profile"
)

func dialBridge(t *testing.T, exec *RunExecutor) *backend.GRPCClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	backend.RegisterServer(srv, exec.Bridge())
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
	return backend.NewGRPCClient(conn)
}

func TestBridgeRejectsCallsDuringRun(t *testing.T) {
	store := NewRunStore()
	client := &fakeBackend{gate: make(chan struct{})}
	exec := NewRunExecutor(store, client, nil)
	bridged := dialBridge(t, exec)

	startRun(t, store, exec, "busy", RunInput{TuningYAML: tuningYAML})
	waitFor(t, "first benchmark call", func() bool { return client.callCount() == 1 })

	req := backend.BenchmarkRequest{
		Prompt:   "hello",
		Profiles: []profile.Descriptor{{Name: "remote", Samples: 1, Options: map[string]any{"temperature": 0.6}}},
	}
	_, err := bridged.Benchmark(context.Background(), req)
	if status.Code(errors.Unwrap(err)) != codes.Unavailable {
		t.Fatalf("expected Unavailable while a run holds the backend, got %v", err)
	}
	err = bridged.ApplyConfiguration(context.Background(), map[string]any{"llm_n_gpu_layers": 32})
	if status.Code(errors.Unwrap(err)) != codes.Unavailable {
		t.Fatalf("expected Unavailable for apply, got %v", err)
	}
	if client.callCount() != 1 || len(client.patches) != 0 {
		t.Fatalf("bridge calls must not reach the backend during a run")
	}

	close(client.gate)
	exec.Wait()

	before := client.callCount()
	resp, err := bridged.Benchmark(context.Background(), req)
	if err != nil {
		t.Fatalf("Benchmark after the run: %v", err)
	}
	if len(resp.Profiles) != 1 || resp.Profiles[0].Runs[0].LatencyMs != 100 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if client.callCount() != before+1 {
		t.Fatalf("expected the bridge to reach the backend once the run ended")
	}
}
