package tuned

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/GoSim-25-26J-441/profile-autotune/internal/backend"
)

// Bridge returns the executor's backend for other callers, such as the gRPC
// re-export. Every call takes the worker lock and fails with
// codes.Unavailable while a run or an apply holds the backend.
func (e *RunExecutor) Bridge() backend.Server {
	return &bridge{executor: e}
}

type bridge struct {
	executor *RunExecutor
}

func (b *bridge) Benchmark(ctx context.Context, req backend.BenchmarkRequest) (*backend.BenchmarkResponse, error) {
	if !b.executor.worker.TryLock() {
		return nil, status.Error(codes.Unavailable, ErrBackendBusy.Error())
	}
	defer b.executor.worker.Unlock()
	return b.executor.client.Benchmark(ctx, req)
}

func (b *bridge) ApplyConfiguration(ctx context.Context, patch map[string]any) error {
	if !b.executor.worker.TryLock() {
		return status.Error(codes.Unavailable, ErrBackendBusy.Error())
	}
	defer b.executor.worker.Unlock()
	return b.executor.client.ApplyConfiguration(ctx, patch)
}
