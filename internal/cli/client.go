package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	grpcadapter "github.com/JoeShih716/go-versioned-ledger/internal/app/account/adapter/in/grpc"
	"github.com/JoeShih716/go-versioned-ledger/internal/app/account/domain"
)

// ClientOptions get/add 共用的旗標
type ClientOptions struct {
	*RootOptions
	Addr    string
	Timeout time.Duration
}

func addClientFlags(cmd *cobra.Command, opts *ClientOptions) {
	cmd.Flags().StringVar(&opts.Addr, "addr", "localhost:50051", "ledger server address")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 5*time.Second, "per-call timeout")
}

// withClient 以共用連線池中 --addr 的客戶端執行 fn 並印出結果
func withClient(cmd *cobra.Command, opts *ClientOptions, fn func(*grpcadapter.AccountClient) (*grpcadapter.AccountReply, error)) error {
	client, err := opts.accountClient(opts.Addr)
	if err != nil {
		return err
	}
	reply, err := fn(client)
	if err != nil {
		return err
	}
	account := domain.Account{ID: reply.ID, Available: reply.Available, Version: reply.Version}
	fmt.Fprintln(cmd.OutOrStdout(), account.String())
	return nil
}

func parseInt(name, s string) (int64, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, s, err)
	}
	return v, nil
}

// NewGetCommand 讀取帳戶 (快取優先)
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ClientOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Read an account from a running server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseInt("id", args[0])
			if err != nil {
				return err
			}
			return withClient(cmd, opts, func(c *grpcadapter.AccountClient) (*grpcadapter.AccountReply, error) {
				ctx, cancel := contextWithTimeout(cmd, opts.Timeout)
				defer cancel()
				return c.GetAccount(ctx, id)
			})
		},
	}
	addClientFlags(cmd, opts)
	return cmd
}

// NewAddCommand 對帳戶套用金額異動 (可為負數)
func NewAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ClientOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "add <id> <amount>",
		Short: "Apply a signed amount to an account on a running server",
		Long: `Apply a signed amount to an account on a running server.

Example:
  ledger add 1 -- -2`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseInt("id", args[0])
			if err != nil {
				return err
			}
			amount, err := parseInt("amount", args[1])
			if err != nil {
				return err
			}
			return withClient(cmd, opts, func(c *grpcadapter.AccountClient) (*grpcadapter.AccountReply, error) {
				ctx, cancel := contextWithTimeout(cmd, opts.Timeout)
				defer cancel()
				return c.AddAmount(ctx, id, amount)
			})
		},
	}
	addClientFlags(cmd, opts)
	return cmd
}
