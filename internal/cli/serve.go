package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/GoSim-25-26J-441/profile-autotune/internal/backend"
	"github.com/GoSim-25-26J-441/profile-autotune/internal/tuned"
	"github.com/GoSim-25-26J-441/profile-autotune/pkg/logger"
)

func newServeCommand(opts *globalOptions) *cobra.Command {
	var httpAddr, grpcAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the tuning daemon",
		Long: `Starts the HTTP API accepting tuning runs (/v1/tunings). Runs are executed
one at a time against the configured backend. When server.grpc_addr is set
the backend is also re-exported over gRPC; bridged calls are refused with
UNAVAILABLE while a run or an apply is using the backend.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			if httpAddr != "" {
				cfg.Server.HTTPAddr = httpAddr
			}
			if grpcAddr != "" {
				cfg.Server.GRPCAddr = grpcAddr
			}

			client, closeClient, err := newBackendClient(cfg.Backend)
			if err != nil {
				return err
			}
			defer closeClient()

			return serve(cmd.Context(), client, cfg.Server.HTTPAddr, cfg.Server.GRPCAddr)
		},
	}
	cmd.Flags().StringVar(&httpAddr, "http-addr", "", "HTTP listen address (overrides server.http_addr)")
	cmd.Flags().StringVar(&grpcAddr, "grpc-addr", "", "gRPC bridge listen address (overrides server.grpc_addr)")
	return cmd
}

func serve(ctx context.Context, client backend.Client, httpAddr, grpcAddr string) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	store := tuned.NewRunStore()
	notifier := tuned.NewNotifier()
	executor := tuned.NewRunExecutor(store, client, notifier)

	// No WriteTimeout: step streams stay open for the length of a run.
	httpSrv := &http.Server{
		Addr:              httpAddr,
		Handler:           tuned.NewHTTPServer(store, executor).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	var grpcServer *grpc.Server
	if grpcAddr != "" {
		lis, err := net.Listen("tcp", grpcAddr)
		if err != nil {
			return err
		}
		grpcServer = grpc.NewServer()
		backend.RegisterServer(grpcServer, executor.Bridge())
		go func() {
			logger.Info("gRPC backend bridge listening", "addr", grpcAddr)
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("gRPC server error", "error", err)
				stop()
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", httpAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown requested")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", "error", err)
	}
	executor.Shutdown()
	notifier.Wait()

	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}
