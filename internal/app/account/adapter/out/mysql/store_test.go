package mysql

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"

	"github.com/JoeShih716/go-versioned-ledger/internal/app/account/domain"
	"github.com/JoeShih716/go-versioned-ledger/pkg/mysql"
)

// newTestStore 以 SQLite in-memory 取代 MySQL；單一連線讓交易自然序列化
func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	client := mysql.NewClientFromDB(db)
	t.Cleanup(func() { _ = client.Close() })

	s := NewStore(client)
	require.NoError(t, s.AutoMigrate(context.Background()))
	return s
}

func TestReadRowNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.ReadRow(context.Background(), 999)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestCreateAccount(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a, err := s.CreateAccount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.Account{ID: 1}, a)

	_, err = s.CreateAccount(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrAccountAlreadyExists)

	got, err := s.ReadRow(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.Account{ID: 1}, got)
}

func TestCreateAccountsSkipsExisting(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.CreateAccount(ctx, 3)
	require.NoError(t, err)

	created, err := s.CreateAccounts(ctx, 1, 10, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(9), created)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(10), n)
}

func TestConditionalUpdate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, err := s.CreateAccount(ctx, 1)
	require.NoError(t, err)

	n, err := s.ConditionalUpdate(ctx, 1, 5, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// 版本已經前進，舊版本的寫入不影響任何列
	n, err = s.ConditionalUpdate(ctx, 1, 100, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	got, err := s.ReadRow(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.Account{ID: 1, Available: 5, Version: 1}, got)

	n, err = s.ConditionalUpdate(ctx, 42, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestLockedTxCommit(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, err := s.CreateAccount(ctx, 1)
	require.NoError(t, err)

	tx, err := s.BeginLocked(ctx)
	require.NoError(t, err)

	current, err := tx.ReadRowForUpdate(ctx, 1)
	require.NoError(t, err)
	next := current.Apply(7)
	require.NoError(t, tx.WriteRowLocked(ctx, 1, next.Available, next.Version))
	require.NoError(t, tx.Commit())
	assert.NoError(t, tx.Rollback(), "rollback after commit is a no-op")

	got, err := s.ReadRow(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.Account{ID: 1, Available: 7, Version: 1}, got)
}

func TestLockedTxRollback(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, err := s.CreateAccount(ctx, 1)
	require.NoError(t, err)

	tx, err := s.BeginLocked(ctx)
	require.NoError(t, err)
	_, err = tx.ReadRowForUpdate(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, tx.WriteRowLocked(ctx, 1, 99, 1))
	require.NoError(t, tx.Rollback())

	got, err := s.ReadRow(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.Account{ID: 1}, got)

	assert.ErrorIs(t, tx.Commit(), domain.ErrInvariantViolation)
}

func TestLockedTxNotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	tx, err := s.BeginLocked(ctx)
	require.NoError(t, err)
	defer tx.Rollback()

	_, err = tx.ReadRowForUpdate(ctx, 999)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestLockedTxRequiresTransaction(t *testing.T) {
	s := newTestStore(t)

	// 直接拿非交易的 *gorm.DB 充當 lockedTx
	tx := &lockedTx{tx: s.client.DB()}

	_, err := tx.ReadRowForUpdate(context.Background(), 1)
	assert.ErrorIs(t, err, domain.ErrInvariantViolation)
	assert.ErrorIs(t, tx.WriteRowLocked(context.Background(), 1, 1, 1), domain.ErrInvariantViolation)
}

func TestConcurrentLockedIncrements(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, err := s.CreateAccount(ctx, 1)
	require.NoError(t, err)

	const writers = 20
	var wg sync.WaitGroup
	wg.Add(writers)
	for range writers {
		go func() {
			defer wg.Done()
			tx, err := s.BeginLocked(ctx)
			if !assert.NoError(t, err) {
				return
			}
			defer tx.Rollback()
			current, err := tx.ReadRowForUpdate(ctx, 1)
			if !assert.NoError(t, err) {
				return
			}
			next := current.Apply(1)
			assert.NoError(t, tx.WriteRowLocked(ctx, 1, next.Available, next.Version))
			assert.NoError(t, tx.Commit())
		}()
	}
	wg.Wait()

	got, err := s.ReadRow(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.Account{ID: 1, Available: writers, Version: writers}, got)
}

func TestStoreErrorIsTransient(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.client.Close())

	_, err := s.Count(context.Background())
	assert.ErrorIs(t, err, domain.ErrTransientStore)

	_, err = s.ReadRow(context.Background(), 1)
	assert.ErrorIs(t, err, domain.ErrTransientStore)
}

func TestProvisionRejectsNegativeID(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.CreateAccount(ctx, -1)
	assert.ErrorIs(t, err, domain.ErrInvalidAccountID)

	_, err = s.CreateAccounts(ctx, -5, 5, 10)
	assert.ErrorIs(t, err, domain.ErrInvalidAccountID)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAccountColumnsAreUnsigned(t *testing.T) {
	sch, err := schema.Parse(&sqlAccount{}, &sync.Map{}, schema.NamingStrategy{})
	require.NoError(t, err)

	for _, name := range []string{"ID", "Version"} {
		field := sch.LookUpField(name)
		require.NotNil(t, field, name)
		assert.Equal(t, "bigint unsigned", field.TagSettings["TYPE"], name)
	}
	assert.Equal(t, "account", sch.Table)
}
