package cli

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"github.com/JoeShih716/go-versioned-ledger/internal/config"
)

func writeMemoryConfig(t *testing.T, redisAddr string) string {
	t.Helper()
	dir := t.TempDir()
	content := fmt.Sprintf(`
store:
  driver: memory
  wal_path: %s
redis:
  addrs: [%q]
  max_retries: 1
log:
  level: error
`, filepath.Join(dir, "wal.log"), redisAddr)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func run(t *testing.T, opts *RootOptions, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand(opts)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "ledger", cmd.Use)

	flag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, flag)
	assert.Equal(t, "config/config.yaml", flag.DefValue)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"serve", "provision", "count", "get", "add", "load"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestProvisionThenCount(t *testing.T) {
	path := writeMemoryConfig(t, "localhost:0")

	out, err := run(t, &RootOptions{}, "--config", path, "provision", "--from", "1", "--to", "10", "--batch", "3")
	require.NoError(t, err)
	assert.Equal(t, "created 10 accounts\n", out)

	out, err = run(t, &RootOptions{}, "--config", path, "provision", "--from", "5", "--to", "12")
	require.NoError(t, err)
	assert.Equal(t, "created 2 accounts\n", out)

	out, err = run(t, &RootOptions{}, "--config", path, "count")
	require.NoError(t, err)
	assert.Equal(t, "12\n", out)
}

func TestProvisionRejectsInvertedRange(t *testing.T) {
	path := writeMemoryConfig(t, "localhost:0")

	_, err := run(t, &RootOptions{}, "--config", path, "provision", "--from", "10", "--to", "1")
	assert.ErrorContains(t, err, "greater than")
}

func TestProvisionRejectsNegativeFrom(t *testing.T) {
	path := writeMemoryConfig(t, "localhost:0")

	_, err := run(t, &RootOptions{}, "--config", path, "provision", "--from", "-5", "--to", "1")
	assert.ErrorContains(t, err, "must not be negative")

	out, err := run(t, &RootOptions{}, "--config", path, "count")
	require.NoError(t, err)
	assert.Equal(t, "0\n", out)
}

// startServing 建立 1..n 的帳戶並在 bufconn 上啟動 serve，回傳共用連線池的客戶端選項
func startServing(t *testing.T, n int) *RootOptions {
	t.Helper()
	mr := miniredis.RunT(t)
	path := writeMemoryConfig(t, mr.Addr())

	_, err := run(t, &RootOptions{}, "--config", path, "provision", "--from", "1", "--to", fmt.Sprint(n))
	require.NoError(t, err)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, cfg, zap.NewNop(), lis) }()

	clientOpts := &RootOptions{
		dialOpts: []grpc.DialOption{
			grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
				return lis.DialContext(ctx)
			}),
		},
	}
	t.Cleanup(func() {
		assert.NoError(t, clientOpts.Close())
		cancel()
		assert.NoError(t, <-done)
	})
	return clientOpts
}

const bufAddr = "passthrough:///bufnet"

func TestServeGetAdd(t *testing.T) {
	clientOpts := startServing(t, 1)

	out, err := run(t, clientOpts, "add", "--addr", bufAddr, "1", "5")
	require.NoError(t, err)
	assert.Equal(t, "1@1: 5", strings.TrimSpace(out))

	out, err = run(t, clientOpts, "add", "--addr", bufAddr, "1", "--", "-2")
	require.NoError(t, err)
	assert.Equal(t, "1@2: 3", strings.TrimSpace(out))

	out, err = run(t, clientOpts, "get", "--addr", bufAddr, "1")
	require.NoError(t, err)
	assert.Equal(t, "1@2: 3", strings.TrimSpace(out))

	_, err = run(t, clientOpts, "get", "--addr", bufAddr, "999")
	assert.ErrorContains(t, err, "NotFound")

	_, err = run(t, clientOpts, "get", "--addr", bufAddr, "abc")
	assert.ErrorContains(t, err, "invalid id")

	// 多個子命令共用同一條連線
	assert.Equal(t, 1, clientOpts.pool.Len())
}

func TestLoadSpreadsUpdatesOverAccounts(t *testing.T) {
	clientOpts := startServing(t, 3)

	out, err := run(t, clientOpts, "load", "--addr", bufAddr, "--from", "1", "--to", "3",
		"--requests", "30", "--workers", "4", "--amount", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "applied 30 updates to 3 accounts")

	for _, id := range []string{"1", "2", "3"} {
		out, err := run(t, clientOpts, "get", "--addr", bufAddr, id)
		require.NoError(t, err)
		assert.Equal(t, id+"@10: 20", strings.TrimSpace(out))
	}
	assert.Equal(t, 1, clientOpts.pool.Len())
}

func TestLoadRejectsBadFlags(t *testing.T) {
	opts := &RootOptions{}
	defer opts.Close()

	_, err := run(t, opts, "load", "--from", "-1", "--to", "3")
	assert.ErrorContains(t, err, "must not be negative")

	_, err = run(t, opts, "load", "--from", "5", "--to", "3")
	assert.ErrorContains(t, err, "greater than")

	_, err = run(t, opts, "load", "--workers", "0")
	assert.ErrorContains(t, err, "must be positive")
	assert.Nil(t, opts.pool)
}

func TestLoadStopsOnFirstFailure(t *testing.T) {
	clientOpts := startServing(t, 1)

	_, err := run(t, clientOpts, "load", "--addr", bufAddr, "--from", "1", "--to", "2", "--requests", "4", "--workers", "1")
	assert.ErrorContains(t, err, "account 2")
	assert.ErrorContains(t, err, "NotFound")
}
