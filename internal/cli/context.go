package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

// commandContext 未經 ExecuteContext 執行時 cmd.Context() 為 nil
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func contextWithTimeout(cmd *cobra.Command, timeout time.Duration) (context.Context, context.CancelFunc) {
	return contextWithTimeoutFrom(commandContext(cmd), timeout)
}

// contextWithTimeoutFrom timeout <= 0 表示不設期限
func contextWithTimeoutFrom(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
