package cli

import (
	"context"
	"errors"
	"sync"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	grpcadapter "github.com/JoeShih716/go-versioned-ledger/internal/app/account/adapter/in/grpc"
	"github.com/JoeShih716/go-versioned-ledger/internal/config"
	grpcpool "github.com/JoeShih716/go-versioned-ledger/pkg/grpc"
)

// RootOptions 所有子命令共用的旗標
type RootOptions struct {
	ConfigPath string

	// dialOpts 附加到 gRPC 客戶端連線 (測試用 bufconn)
	dialOpts []grpc.DialOption

	poolOnce sync.Once
	pool     *grpcpool.Pool[*grpcadapter.AccountClient]
}

// accountClient 從行程共用的連線池取得 addr 的客戶端
func (o *RootOptions) accountClient(addr string) (*grpcadapter.AccountClient, error) {
	o.poolOnce.Do(func() {
		o.pool = grpcpool.NewPool(grpcadapter.NewAccountClient, grpcpool.WithDialOptions(o.dialOpts...))
	})
	return o.pool.Client(addr)
}

// Close 釋放客戶端子命令建立的連線
func (o *RootOptions) Close() error {
	if o.pool == nil {
		return nil
	}
	return o.pool.Close()
}

// LoadConfig 依 --config 讀取設定
func (o *RootOptions) LoadConfig() (config.Config, error) {
	return config.Load(o.ConfigPath)
}

// Execute 執行根命令並在結束後關閉共用連線
func Execute(ctx context.Context) error {
	opts := &RootOptions{}
	err := newRootCommand(opts).ExecuteContext(ctx)
	return errors.Join(err, opts.Close())
}

// NewRootCommand 建立 ledger 的根命令
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Versioned account ledger",
		Long: `Versioned account ledger backed by MySQL, PostgreSQL or an in-memory
write-ahead log, fronted by a Redis version-ordered cache.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "config/config.yaml", "path to the YAML config file")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewProvisionCommand(opts))
	cmd.AddCommand(NewCountCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewAddCommand(opts))
	cmd.AddCommand(NewLoadCommand(opts))

	return cmd
}
