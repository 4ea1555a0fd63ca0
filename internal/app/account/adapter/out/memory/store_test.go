package memory

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoeShih716/go-versioned-ledger/internal/app/account/domain"
	"github.com/JoeShih716/go-versioned-ledger/pkg/wal"
)

func newTestStore(t *testing.T, ids ...int64) *Store {
	t.Helper()
	s, err := NewStore()
	require.NoError(t, err)
	for _, id := range ids {
		_, err := s.CreateAccount(context.Background(), id)
		require.NoError(t, err)
	}
	return s
}

func TestReadRowNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.ReadRow(context.Background(), 999)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestConditionalUpdateChecksVersion(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, 1)

	n, err := s.ConditionalUpdate(ctx, 1, 5, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// 舊版本不再生效
	n, err = s.ConditionalUpdate(ctx, 1, 100, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	got, err := s.ReadRow(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.Account{ID: 1, Available: 5, Version: 1}, got)
}

func TestLockedTxCommit(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, 1)

	tx, err := s.BeginLocked(ctx)
	require.NoError(t, err)
	a, err := tx.ReadRowForUpdate(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, tx.WriteRowLocked(ctx, 1, a.Available+7, a.Version+1))

	// 提交前讀不到未提交的值
	before, err := s.ReadRow(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), before.Version)

	require.NoError(t, tx.Commit())
	require.NoError(t, tx.Rollback(), "rollback after commit is a no-op")

	after, err := s.ReadRow(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.Account{ID: 1, Available: 7, Version: 1}, after)
}

func TestLockedTxRollbackDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, 1)

	tx, err := s.BeginLocked(ctx)
	require.NoError(t, err)
	_, err = tx.ReadRowForUpdate(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, tx.WriteRowLocked(ctx, 1, 50, 1))
	require.NoError(t, tx.Rollback())

	got, err := s.ReadRow(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.NewAccount(1), got)
}

func TestLockedTxWriteWithoutLock(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, 1)

	tx, err := s.BeginLocked(ctx)
	require.NoError(t, err)
	defer tx.Rollback()

	err = tx.WriteRowLocked(ctx, 1, 1, 1)
	assert.ErrorIs(t, err, domain.ErrInvariantViolation)
}

func TestRowLockBlocksUntilRelease(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, 1)

	holder, err := s.BeginLocked(ctx)
	require.NoError(t, err)
	_, err = holder.ReadRowForUpdate(ctx, 1)
	require.NoError(t, err)

	// 等鎖逾時 => transient
	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	waiter, err := s.BeginLocked(ctx)
	require.NoError(t, err)
	_, err = waiter.ReadRowForUpdate(waitCtx, 1)
	assert.ErrorIs(t, err, domain.ErrTransientStore)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	require.NoError(t, waiter.Rollback())

	// ConditionalUpdate 同樣會等列鎖
	_, err = s.ConditionalUpdate(waitCtx, 1, 1, 0)
	assert.ErrorIs(t, err, domain.ErrTransientStore)

	require.NoError(t, holder.Rollback())
	n, err := s.ConditionalUpdate(ctx, 1, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestConcurrentLockedIncrements(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, 1)

	const writers = 50
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func() {
			defer wg.Done()
			tx, err := s.BeginLocked(ctx)
			if !assert.NoError(t, err) {
				return
			}
			defer tx.Rollback()
			a, err := tx.ReadRowForUpdate(ctx, 1)
			if !assert.NoError(t, err) {
				return
			}
			assert.NoError(t, tx.WriteRowLocked(ctx, 1, a.Available+1, a.Version+1))
			assert.NoError(t, tx.Commit())
		}()
	}
	wg.Wait()

	got, err := s.ReadRow(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.Account{ID: 1, Available: writers, Version: writers}, got)
}

func TestCreateAccounts(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, 3)

	created, err := s.CreateAccounts(ctx, 1, 10, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(9), created, "id 3 already exists")

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(10), count)

	_, err = s.CreateAccount(ctx, 3)
	assert.ErrorIs(t, err, domain.ErrAccountAlreadyExists)
}

func TestRecoverFromWAL(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "wal.log")

	l, err := wal.Open(path)
	require.NoError(t, err)
	s, err := NewStore(WithWAL(l))
	require.NoError(t, err)

	_, err = s.CreateAccounts(ctx, 1, 2, 10)
	require.NoError(t, err)
	_, err = s.ConditionalUpdate(ctx, 1, 5, 0)
	require.NoError(t, err)

	tx, err := s.BeginLocked(ctx)
	require.NoError(t, err)
	_, err = tx.ReadRowForUpdate(ctx, 2)
	require.NoError(t, err)
	require.NoError(t, tx.WriteRowLocked(ctx, 2, -3, 1))
	require.NoError(t, tx.Commit())
	require.NoError(t, l.Close())

	l, err = wal.Open(path)
	require.NoError(t, err)
	defer l.Close()
	recovered, err := NewStore(WithWAL(l))
	require.NoError(t, err)

	a1, err := recovered.ReadRow(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.Account{ID: 1, Available: 5, Version: 1}, a1)

	a2, err := recovered.ReadRow(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, domain.Account{ID: 2, Available: -3, Version: 1}, a2)
}

func TestProvisionRejectsNegativeID(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.CreateAccount(ctx, -1)
	assert.ErrorIs(t, err, domain.ErrInvalidAccountID)

	created, err := s.CreateAccounts(ctx, -5, 5, 10)
	assert.ErrorIs(t, err, domain.ErrInvalidAccountID)
	assert.Zero(t, created)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCreateAccountsBatchIsOneWALRecordSet(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "wal.log")
	w, err := wal.Open(path)
	require.NoError(t, err)
	s, err := NewStore(WithWAL(w))
	require.NoError(t, err)

	created, err := s.CreateAccounts(ctx, 1, 1000, 500)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), created)
	require.NoError(t, w.Close())

	w, err = wal.Open(path)
	require.NoError(t, err)
	defer w.Close()
	recovered, err := NewStore(WithWAL(w))
	require.NoError(t, err)
	n, err := recovered.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), n)
}
