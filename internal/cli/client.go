package cli

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/GoSim-25-26J-441/profile-autotune/internal/backend"
	"github.com/GoSim-25-26J-441/profile-autotune/pkg/config"
)

// newBackendClient connects to the configured backend. The returned close
// function releases the connection.
var newBackendClient = dialBackend

func dialBackend(cfg config.BackendConfig) (backend.Client, func() error, error) {
	timeout, err := cfg.GetTimeout()
	if err != nil {
		return nil, nil, fmt.Errorf("invalid backend timeout: %w", err)
	}

	switch cfg.Transport {
	case "grpc":
		conn, err := grpc.NewClient(cfg.GRPCAddr,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithUnaryInterceptor(timeoutInterceptor(timeout)))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to %s: %w", cfg.GRPCAddr, err)
		}
		return backend.NewGRPCClient(conn), conn.Close, nil
	default:
		return backend.NewHTTPClient(cfg.URL, cfg.APIKey, timeout), func() error { return nil }, nil
	}
}

// timeoutInterceptor bounds every unary call like the HTTP client timeout.
func timeoutInterceptor(timeout time.Duration) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}
