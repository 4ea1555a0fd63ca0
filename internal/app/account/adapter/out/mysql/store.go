package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/JoeShih716/go-versioned-ledger/internal/app/account/domain"
	"github.com/JoeShih716/go-versioned-ledger/internal/app/account/usecase"
	"github.com/JoeShih716/go-versioned-ledger/pkg/mysql"
)

// sqlAccount 對應資料庫的 account 表
type sqlAccount struct {
	ID        int64 `gorm:"primaryKey;autoIncrement:false;type:bigint unsigned"`
	Available int64 `gorm:"not null"`
	Version   int64 `gorm:"type:bigint unsigned;not null"`
}

func (*sqlAccount) TableName() string {
	return "account"
}

func (a *sqlAccount) toDomain() domain.Account {
	return domain.Account{ID: a.ID, Available: a.Available, Version: a.Version}
}

type Store struct {
	client *mysql.Client
}

func NewStore(client *mysql.Client) *Store {
	return &Store{
		client: client,
	}
}

// AutoMigrate 建立 account 表 (已存在則不動)
func (s *Store) AutoMigrate(ctx context.Context) error {
	if err := s.client.DB().WithContext(ctx).AutoMigrate(&sqlAccount{}); err != nil {
		return domain.NewStoreError("migrate", err)
	}
	return nil
}

// Count 帳戶總數
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.client.DB().WithContext(ctx).Model(&sqlAccount{}).Count(&n).Error; err != nil {
		return 0, domain.NewStoreError("count", err)
	}
	return n, nil
}

// ReadRow SELECT id, available, version FROM account WHERE id = ?
func (s *Store) ReadRow(ctx context.Context, id int64) (domain.Account, error) {
	return readRow(s.client.DB().WithContext(ctx), "read", id)
}

// ConditionalUpdate UPDATE account SET available = ?, version = version + 1 WHERE id = ? AND version = ?
func (s *Store) ConditionalUpdate(ctx context.Context, id, newAvailable, expectedVersion int64) (int64, error) {
	res := s.client.DB().WithContext(ctx).
		Model(&sqlAccount{}).
		Where("id = ? AND version = ?", id, expectedVersion).
		Updates(map[string]any{
			"available": newAvailable,
			"version":   gorm.Expr("version + ?", 1),
		})
	if res.Error != nil {
		return 0, domain.NewStoreError("conditional update", res.Error)
	}
	return res.RowsAffected, nil
}

// BeginLocked 手動開啟交易 (不使用 gorm 的 Transaction callback，讓 updater 控制 Commit/Rollback)
func (s *Store) BeginLocked(ctx context.Context) (usecase.LockedTx, error) {
	tx := s.client.DB().WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, domain.NewStoreError("begin", tx.Error)
	}
	return &lockedTx{tx: tx}, nil
}

// CreateAccount 建立單一帳戶 (0, 0)
func (s *Store) CreateAccount(ctx context.Context, id int64) (domain.Account, error) {
	if err := domain.ValidateID(id); err != nil {
		return domain.Account{}, err
	}
	row := sqlAccount{ID: id}
	res := s.client.DB().WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row)
	if res.Error != nil {
		return domain.Account{}, domain.NewStoreError("insert", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.Account{}, fmt.Errorf("account %d: %w", id, domain.ErrAccountAlreadyExists)
	}
	return domain.NewAccount(id), nil
}

// CreateAccounts 批次 INSERT，已存在的 ID 由 ON CONFLICT DO NOTHING 略過
func (s *Store) CreateAccounts(ctx context.Context, from, to, batchSize int64) (int64, error) {
	if err := domain.ValidateID(from); err != nil {
		return 0, err
	}
	if batchSize <= 0 {
		batchSize = 1
	}
	db := s.client.DB().WithContext(ctx)

	var created int64
	for start := from; start <= to; start += batchSize {
		end := min(start+batchSize-1, to)
		rows := make([]sqlAccount, 0, end-start+1)
		for id := start; id <= end; id++ {
			rows = append(rows, sqlAccount{ID: id})
		}
		res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows)
		if res.Error != nil {
			return created, domain.NewStoreError("insert", res.Error)
		}
		created += res.RowsAffected
	}
	return created, nil
}

func readRow(db *gorm.DB, op string, id int64) (domain.Account, error) {
	var row sqlAccount
	err := db.Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Account{}, fmt.Errorf("account %d: %w", id, domain.ErrAccountNotFound)
	}
	if err != nil {
		return domain.Account{}, domain.NewStoreError(op, err)
	}
	return row.toDomain(), nil
}

// lockedTx 包裝 gorm 交易
type lockedTx struct {
	tx   *gorm.DB
	done bool
}

// inTransaction 確認底層連線真的是一個交易，否則 FOR UPDATE 在 auto-commit 下會立即釋放
func (t *lockedTx) inTransaction() bool {
	_, ok := t.tx.Statement.ConnPool.(gorm.TxCommitter)
	return ok
}

// ReadRowForUpdate SELECT ... FOR UPDATE
func (t *lockedTx) ReadRowForUpdate(ctx context.Context, id int64) (domain.Account, error) {
	if t.done || !t.inTransaction() {
		return domain.Account{}, fmt.Errorf("select for update outside a transaction: %w", domain.ErrInvariantViolation)
	}
	return readRow(t.tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), "select for update", id)
}

// WriteRowLocked UPDATE account SET available = ?, version = ? WHERE id = ?
func (t *lockedTx) WriteRowLocked(ctx context.Context, id, newAvailable, newVersion int64) error {
	if t.done || !t.inTransaction() {
		return fmt.Errorf("locked write outside a transaction: %w", domain.ErrInvariantViolation)
	}
	res := t.tx.WithContext(ctx).
		Model(&sqlAccount{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"available": newAvailable,
			"version":   newVersion,
		})
	if res.Error != nil {
		return domain.NewStoreError("locked update", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("locked update of account %d matched no row: %w", id, domain.ErrInvariantViolation)
	}
	return nil
}

func (t *lockedTx) Commit() error {
	if t.done {
		return fmt.Errorf("commit: %w", domain.ErrInvariantViolation)
	}
	t.done = true
	if err := t.tx.Commit().Error; err != nil {
		return domain.NewStoreError("commit", err)
	}
	return nil
}

// Rollback 在 Commit 之後是 no-op
func (t *lockedTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	if err := t.tx.Rollback().Error; err != nil && !errors.Is(err, sql.ErrTxDone) {
		return domain.NewStoreError("rollback", err)
	}
	return nil
}

var (
	_ usecase.Store       = (*Store)(nil)
	_ usecase.Provisioner = (*Store)(nil)
)
