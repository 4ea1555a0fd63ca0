package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JoeShih716/go-versioned-ledger/internal/app/account/domain"
	"github.com/JoeShih716/go-versioned-ledger/internal/app/account/usecase"
)

const (
	dialectPostgres = "postgres"
	tableAccount    = "account"
	colID           = "id"
	colAvailable    = "available"
	colVersion      = "version"
)

// CreateTableSQL 建立 account 表
const CreateTableSQL = `CREATE TABLE IF NOT EXISTS account (
	id        BIGINT PRIMARY KEY CHECK (id >= 0),
	available BIGINT NOT NULL DEFAULT 0,
	version   BIGINT NOT NULL DEFAULT 0 CHECK (version >= 0)
)`

// DB 是 Store 需要的 pgx 操作，*pgxpool.Pool 直接滿足
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Store struct {
	db      DB
	dialect goqu.DialectWrapper
}

func NewStore(db DB) *Store {
	return &Store{
		db:      db,
		dialect: goqu.Dialect(dialectPostgres),
	}
}

// Migrate 建立 account 表 (已存在則不動)
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, CreateTableSQL); err != nil {
		return domain.NewStoreError("migrate", err)
	}
	return nil
}

func (s *Store) countSQL() (string, []any, error) {
	return s.dialect.From(tableAccount).
		Select(goqu.COUNT(goqu.Star())).
		Prepared(true).
		ToSQL()
}

func (s *Store) selectSQL(id int64, forUpdate bool) (string, []any, error) {
	ds := s.dialect.From(tableAccount).
		Select(colID, colAvailable, colVersion).
		Where(goqu.C(colID).Eq(id)).
		Prepared(true)
	if forUpdate {
		ds = ds.ForUpdate(exp.Wait)
	}
	return ds.ToSQL()
}

func (s *Store) conditionalUpdateSQL(id, newAvailable, expectedVersion int64) (string, []any, error) {
	return s.dialect.Update(tableAccount).
		Set(goqu.Record{
			colAvailable: newAvailable,
			colVersion:   goqu.L(`"version" + 1`),
		}).
		Where(goqu.C(colID).Eq(id), goqu.C(colVersion).Eq(expectedVersion)).
		Prepared(true).
		ToSQL()
}

func (s *Store) lockedUpdateSQL(id, newAvailable, newVersion int64) (string, []any, error) {
	return s.dialect.Update(tableAccount).
		Set(goqu.Record{
			colAvailable: newAvailable,
			colVersion:   newVersion,
		}).
		Where(goqu.C(colID).Eq(id)).
		Prepared(true).
		ToSQL()
}

func (s *Store) insertSQL(from, to int64) (string, []any, error) {
	rows := make([]any, 0, to-from+1)
	for id := from; id <= to; id++ {
		rows = append(rows, goqu.Record{colID: id, colAvailable: 0, colVersion: 0})
	}
	return s.dialect.Insert(tableAccount).
		Rows(rows...).
		OnConflict(goqu.DoNothing()).
		Prepared(true).
		ToSQL()
}

// Count 帳戶總數
func (s *Store) Count(ctx context.Context) (int64, error) {
	query, args, err := s.countSQL()
	if err != nil {
		return 0, fmt.Errorf("build count query: %w", err)
	}
	var n int64
	if err := s.db.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, domain.NewStoreError("count", err)
	}
	return n, nil
}

// ReadRow 讀取已提交的狀態
func (s *Store) ReadRow(ctx context.Context, id int64) (domain.Account, error) {
	query, args, err := s.selectSQL(id, false)
	if err != nil {
		return domain.Account{}, fmt.Errorf("build select query: %w", err)
	}
	return scanAccount(s.db.QueryRow(ctx, query, args...), "read", id)
}

// ConditionalUpdate 版本相符才寫入，回傳受影響列數
func (s *Store) ConditionalUpdate(ctx context.Context, id, newAvailable, expectedVersion int64) (int64, error) {
	query, args, err := s.conditionalUpdateSQL(id, newAvailable, expectedVersion)
	if err != nil {
		return 0, fmt.Errorf("build update query: %w", err)
	}
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, domain.NewStoreError("conditional update", err)
	}
	return tag.RowsAffected(), nil
}

// BeginLocked 開啟交易；lock_timeout 由連線池設定
func (s *Store) BeginLocked(ctx context.Context) (usecase.LockedTx, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, domain.NewStoreError("begin", err)
	}
	return &lockedTx{store: s, tx: tx}, nil
}

// CreateAccount 建立單一帳戶 (0, 0)
func (s *Store) CreateAccount(ctx context.Context, id int64) (domain.Account, error) {
	if err := domain.ValidateID(id); err != nil {
		return domain.Account{}, err
	}
	n, err := s.insert(ctx, id, id)
	if err != nil {
		return domain.Account{}, err
	}
	if n == 0 {
		return domain.Account{}, fmt.Errorf("account %d: %w", id, domain.ErrAccountAlreadyExists)
	}
	return domain.NewAccount(id), nil
}

// CreateAccounts 批次 INSERT ... ON CONFLICT DO NOTHING
func (s *Store) CreateAccounts(ctx context.Context, from, to, batchSize int64) (int64, error) {
	if err := domain.ValidateID(from); err != nil {
		return 0, err
	}
	if batchSize <= 0 {
		batchSize = 1
	}
	var created int64
	for start := from; start <= to; start += batchSize {
		n, err := s.insert(ctx, start, min(start+batchSize-1, to))
		created += n
		if err != nil {
			return created, err
		}
	}
	return created, nil
}

func (s *Store) insert(ctx context.Context, from, to int64) (int64, error) {
	query, args, err := s.insertSQL(from, to)
	if err != nil {
		return 0, fmt.Errorf("build insert query: %w", err)
	}
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, domain.NewStoreError("insert", err)
	}
	return tag.RowsAffected(), nil
}

func scanAccount(row pgx.Row, op string, id int64) (domain.Account, error) {
	var a domain.Account
	err := row.Scan(&a.ID, &a.Available, &a.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Account{}, fmt.Errorf("account %d: %w", id, domain.ErrAccountNotFound)
	}
	if err != nil {
		return domain.Account{}, domain.NewStoreError(op, err)
	}
	return a, nil
}

type lockedTx struct {
	store *Store
	tx    pgx.Tx
	done  bool
}

// ReadRowForUpdate SELECT ... FOR UPDATE
func (t *lockedTx) ReadRowForUpdate(ctx context.Context, id int64) (domain.Account, error) {
	if t.tx == nil || t.done {
		return domain.Account{}, fmt.Errorf("select for update outside a transaction: %w", domain.ErrInvariantViolation)
	}
	query, args, err := t.store.selectSQL(id, true)
	if err != nil {
		return domain.Account{}, fmt.Errorf("build select query: %w", err)
	}
	return scanAccount(t.tx.QueryRow(ctx, query, args...), "select for update", id)
}

func (t *lockedTx) WriteRowLocked(ctx context.Context, id, newAvailable, newVersion int64) error {
	if t.tx == nil || t.done {
		return fmt.Errorf("locked write outside a transaction: %w", domain.ErrInvariantViolation)
	}
	query, args, err := t.store.lockedUpdateSQL(id, newAvailable, newVersion)
	if err != nil {
		return fmt.Errorf("build update query: %w", err)
	}
	tag, err := t.tx.Exec(ctx, query, args...)
	if err != nil {
		return domain.NewStoreError("locked update", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("locked update of account %d matched no row: %w", id, domain.ErrInvariantViolation)
	}
	return nil
}

func (t *lockedTx) Commit() error {
	if t.tx == nil || t.done {
		return fmt.Errorf("commit: %w", domain.ErrInvariantViolation)
	}
	t.done = true
	if err := t.tx.Commit(context.Background()); err != nil {
		return domain.NewStoreError("commit", err)
	}
	return nil
}

// Rollback 在 Commit 之後是 no-op
func (t *lockedTx) Rollback() error {
	if t.tx == nil || t.done {
		return nil
	}
	t.done = true
	if err := t.tx.Rollback(context.Background()); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return domain.NewStoreError("rollback", err)
	}
	return nil
}

var (
	_ usecase.Store       = (*Store)(nil)
	_ usecase.Provisioner = (*Store)(nil)
)
