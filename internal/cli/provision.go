package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// ProvisionOptions provision 命令的旗標
type ProvisionOptions struct {
	*RootOptions
	From  int64
	To    int64
	Batch int64
}

// NewProvisionCommand 批次建立帳戶 (available=0, version=0)，已存在的 ID 略過
func NewProvisionCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ProvisionOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Create accounts with zero balance",
		Long: `Create accounts from..to (inclusive) with available=0 and version=0.

Example:
  ledger provision --from 1 --to 1000000 --batch 10000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.From < 0 {
				return fmt.Errorf("--from %d must not be negative", opts.From)
			}
			if opts.From > opts.To {
				return fmt.Errorf("--from %d is greater than --to %d", opts.From, opts.To)
			}
			cfg, err := opts.LoadConfig()
			if err != nil {
				return err
			}
			log, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			b, err := openStore(commandContext(cmd), cfg, log)
			if err != nil {
				return err
			}
			defer b.Close()

			created, err := b.store.CreateAccounts(commandContext(cmd), opts.From, opts.To, opts.Batch)
			log.Info("provisioned",
				zap.Int64("from", opts.From),
				zap.Int64("to", opts.To),
				zap.Int64("created", created))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %d accounts\n", created)
			return nil
		},
	}

	cmd.Flags().Int64Var(&opts.From, "from", 1, "first account id")
	cmd.Flags().Int64Var(&opts.To, "to", 1, "last account id (inclusive)")
	cmd.Flags().Int64Var(&opts.Batch, "batch", 10000, "rows per insert")

	return cmd
}
