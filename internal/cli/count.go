package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewCountCommand 直接查詢持久層的帳戶總數
func NewCountCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Print the number of accounts in the store",
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

			b, err := openStore(commandContext(cmd), cfg, log)
			if err != nil {
				return err
			}
			defer b.Close()

			n, err := b.store.Count(commandContext(cmd))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
}
