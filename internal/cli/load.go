package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// LoadOptions load 命令的旗標
type LoadOptions struct {
	ClientOptions
	From     int64
	To       int64
	Requests int
	Workers  int
	Amount   int64
}

// NewLoadCommand 以多個 worker 共用同一條連線，對 from..to 的帳戶輪流送出 add
func NewLoadCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LoadOptions{ClientOptions: ClientOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Send concurrent add requests to a running server",
		Long: `Send --requests add calls spread round-robin over accounts from..to,
using --workers concurrent callers that share one connection.

Example:
  ledger load --from 1 --to 100 --requests 100000 --workers 64`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.From < 0 {
				return fmt.Errorf("--from %d must not be negative", opts.From)
			}
			if opts.From > opts.To {
				return fmt.Errorf("--from %d is greater than --to %d", opts.From, opts.To)
			}
			if opts.Workers < 1 {
				return fmt.Errorf("--workers %d must be positive", opts.Workers)
			}

			client, err := opts.accountClient(opts.Addr)
			if err != nil {
				return err
			}

			span := opts.To - opts.From + 1
			start := time.Now()
			g, ctx := errgroup.WithContext(commandContext(cmd))
			g.SetLimit(opts.Workers)
			for i := 0; i < opts.Requests; i++ {
				id := opts.From + int64(i)%span
				g.Go(func() error {
					callCtx, cancel := contextWithTimeoutFrom(ctx, opts.Timeout)
					defer cancel()
					if _, err := client.AddAmount(callCtx, id, opts.Amount); err != nil {
						return fmt.Errorf("add %d to account %d: %w", opts.Amount, id, err)
					}
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			elapsed := time.Since(start)
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d updates to %d accounts\n", opts.Requests, min(span, int64(opts.Requests)))
			fmt.Fprintf(cmd.ErrOrStderr(), "elapsed %s\n", elapsed.Round(time.Millisecond))
			return nil
		},
	}

	addClientFlags(cmd, &opts.ClientOptions)
	cmd.Flags().Int64Var(&opts.From, "from", 1, "first account id")
	cmd.Flags().Int64Var(&opts.To, "to", 1, "last account id (inclusive)")
	cmd.Flags().IntVar(&opts.Requests, "requests", 1000, "total add calls")
	cmd.Flags().IntVar(&opts.Workers, "workers", 16, "concurrent callers")
	cmd.Flags().Int64Var(&opts.Amount, "amount", 1, "amount applied per call")

	return cmd
}
