package cli

import (
	"context"
	"fmt"
	"net"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	grpcadapter "github.com/JoeShih716/go-versioned-ledger/internal/app/account/adapter/in/grpc"
	"github.com/JoeShih716/go-versioned-ledger/internal/config"
)

// NewServeCommand 啟動 gRPC 服務
func NewServeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the ledger gRPC server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.LoadConfig()
			if err != nil {
				return err
			}
			log, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(commandContext(cmd), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			lis, err := net.Listen("tcp", cfg.GRPC.Addr)
			if err != nil {
				return fmt.Errorf("listen %s: %w", cfg.GRPC.Addr, err)
			}
			return serve(ctx, cfg, log, lis)
		},
	}
}

// serve 建立所有依賴並在 lis 上服務，直到 ctx 結束後 GracefulStop
func serve(ctx context.Context, cfg config.Config, log *zap.Logger, lis net.Listener) error {
	b, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.Close(); err != nil {
			log.Warn("close store failed", zap.Error(err))
		}
	}()

	cache, rdb, err := openCache(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = rdb.Close() }()

	svc, err := newService(cfg, b.store, cache, log)
	if err != nil {
		return err
	}

	s := grpcadapter.NewServer(svc, log)

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting gRPC server", zap.String("addr", lis.Addr().String()))
		errCh <- s.Serve(lis)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	s.GracefulStop()
	log.Info("server exited")
	return nil
}
