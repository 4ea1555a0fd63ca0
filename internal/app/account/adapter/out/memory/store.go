package memory

import (
	"context"
	"fmt"
	"sync"

	jsoniter "github.com/json-iterator/go"

	"github.com/JoeShih716/go-versioned-ledger/internal/app/account/domain"
	"github.com/JoeShih716/go-versioned-ledger/internal/app/account/usecase"
	"github.com/JoeShih716/go-versioned-ledger/pkg/wal"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// row 一個帳戶列
//
// 結構:
//
//	available, version: 已提交的狀態，由 Store.mu 保護
//	lock: 列鎖 (容量 1 的 channel)，讓等待鎖的一方可以被 ctx 取消
type row struct {
	available int64
	version   int64
	lock      chan struct{}
}

func newRow(available, version int64) *row {
	return &row{
		available: available,
		version:   version,
		lock:      make(chan struct{}, 1),
	}
}

func (r *row) acquire(ctx context.Context) error {
	select {
	case r.lock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *row) release() {
	<-r.lock
}

// Store 是一個使用 Mutex 實現的記憶體帳本，以 WAL 持久化
//
// 結構:
//
//	rows: 帳戶資料 Map
//	mu: 保護 rows 以及已提交的欄位
//	wal: Write-Ahead Log 實例 (nil 代表不持久化)
type Store struct {
	mu   sync.RWMutex
	rows map[int64]*row
	wal  *wal.WAL
}

// Option 設定 Store
type Option func(*Store)

// WithWAL 設定 Write-Ahead Log；建立 Store 時會先重放
func WithWAL(w *wal.WAL) Option {
	return func(s *Store) {
		s.wal = w
	}
}

// NewStore 建立記憶體帳本，若有 WAL 則先從 WAL 恢復狀態
//
// 回傳:
//
//	*Store: Store 實例
//	error: WAL 恢復失敗
func NewStore(opts ...Option) (*Store, error) {
	s := &Store{
		rows: make(map[int64]*row),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.recoverFromWAL(); err != nil {
		return nil, err
	}
	return s, nil
}

// recoverFromWAL 只有 NewStore 呼叫，無需 Lock (單執行緒)
func (s *Store) recoverFromWAL() error {
	if s.wal == nil {
		return nil
	}
	return s.wal.Replay(func(raw []byte) error {
		var rec domain.Account
		if err := json.Unmarshal(raw, &rec); err != nil {
			return fmt.Errorf("wal replay: %w", err)
		}
		// 後寫入的紀錄覆蓋先前的狀態
		if r, ok := s.rows[rec.ID]; ok {
			r.available = rec.Available
			r.version = rec.Version
			return nil
		}
		s.rows[rec.ID] = newRow(rec.Available, rec.Version)
		return nil
	})
}

// appendWAL 先寫 WAL 再改記憶體 (Critical Path)
func (s *Store) appendWAL(op string, records ...domain.Account) error {
	if s.wal == nil {
		return nil
	}
	batch := make([]any, len(records))
	for i, rec := range records {
		batch[i] = rec
	}
	if err := s.wal.AppendBatch(batch...); err != nil {
		return domain.NewStoreError(op, err)
	}
	return nil
}

func (s *Store) lookup(id int64) (*row, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rows[id]
	return r, ok
}

// Count 帳戶總數
func (s *Store) Count(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, domain.NewStoreError("count", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.rows)), nil
}

// ReadRow 讀取已提交的狀態，不會被列鎖阻塞
func (s *Store) ReadRow(ctx context.Context, id int64) (domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return domain.Account{}, domain.NewStoreError("read", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rows[id]
	if !ok {
		return domain.Account{}, fmt.Errorf("account %d: %w", id, domain.ErrAccountNotFound)
	}
	return domain.Account{ID: id, Available: r.available, Version: r.version}, nil
}

// ConditionalUpdate 與資料庫的 UPDATE ... WHERE version = ? 相同：
// 會等待其他交易持有的列鎖，版本不符時回傳 0
func (s *Store) ConditionalUpdate(ctx context.Context, id, newAvailable, expectedVersion int64) (int64, error) {
	r, ok := s.lookup(id)
	if !ok {
		return 0, nil
	}
	if err := r.acquire(ctx); err != nil {
		return 0, domain.NewStoreError("conditional update", err)
	}
	defer r.release()

	s.mu.Lock()
	defer s.mu.Unlock()
	if r.version != expectedVersion {
		return 0, nil
	}
	next := domain.Account{ID: id, Available: newAvailable, Version: expectedVersion + 1}
	if err := s.appendWAL("conditional update", next); err != nil {
		return 0, err
	}
	r.available = next.Available
	r.version = next.Version
	return 1, nil
}

// BeginLocked 開啟交易；寫入先暫存，Commit 時才套用
func (s *Store) BeginLocked(ctx context.Context) (usecase.LockedTx, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewStoreError("begin", err)
	}
	return &lockedTx{
		store:   s,
		locked:  make(map[int64]*row),
		pending: make(map[int64]domain.Account),
	}, nil
}

// CreateAccount 建立單一帳戶
func (s *Store) CreateAccount(ctx context.Context, id int64) (domain.Account, error) {
	if err := domain.ValidateID(id); err != nil {
		return domain.Account{}, err
	}
	if err := ctx.Err(); err != nil {
		return domain.Account{}, domain.NewStoreError("insert", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[id]; ok {
		return domain.Account{}, fmt.Errorf("account %d: %w", id, domain.ErrAccountAlreadyExists)
	}
	account := domain.NewAccount(id)
	if err := s.appendWAL("insert", account); err != nil {
		return domain.Account{}, err
	}
	s.rows[id] = newRow(0, 0)
	return account, nil
}

// CreateAccounts 批次建立 [from, to]，已存在的略過
func (s *Store) CreateAccounts(ctx context.Context, from, to, batchSize int64) (int64, error) {
	if err := domain.ValidateID(from); err != nil {
		return 0, err
	}
	if batchSize <= 0 {
		batchSize = 1
	}
	var created int64
	for start := from; start <= to; start += batchSize {
		end := min(start+batchSize-1, to)
		n, err := s.createBatch(ctx, start, end)
		created += n
		if err != nil {
			return created, err
		}
	}
	return created, nil
}

func (s *Store) createBatch(ctx context.Context, from, to int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, domain.NewStoreError("insert", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := make([]domain.Account, 0, to-from+1)
	for id := from; id <= to; id++ {
		if _, ok := s.rows[id]; !ok {
			batch = append(batch, domain.NewAccount(id))
		}
	}
	if err := s.appendWAL("insert", batch...); err != nil {
		return 0, err
	}
	for _, a := range batch {
		s.rows[a.ID] = newRow(0, 0)
	}
	return int64(len(batch)), nil
}

// lockedTx 持有列鎖的交易
type lockedTx struct {
	store   *Store
	locked  map[int64]*row
	pending map[int64]domain.Account
	done    bool
}

func (tx *lockedTx) ReadRowForUpdate(ctx context.Context, id int64) (domain.Account, error) {
	if tx.done {
		return domain.Account{}, fmt.Errorf("read for update after commit/rollback: %w", domain.ErrInvariantViolation)
	}
	if a, ok := tx.pending[id]; ok {
		return a, nil
	}
	r, ok := tx.locked[id]
	if !ok {
		r, ok = tx.store.lookup(id)
		if !ok {
			return domain.Account{}, fmt.Errorf("account %d: %w", id, domain.ErrAccountNotFound)
		}
		if err := r.acquire(ctx); err != nil {
			return domain.Account{}, domain.NewStoreError("select for update", err)
		}
		tx.locked[id] = r
	}

	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	return domain.Account{ID: id, Available: r.available, Version: r.version}, nil
}

func (tx *lockedTx) WriteRowLocked(_ context.Context, id, newAvailable, newVersion int64) error {
	if tx.done {
		return fmt.Errorf("write after commit/rollback: %w", domain.ErrInvariantViolation)
	}
	if _, ok := tx.locked[id]; !ok {
		return fmt.Errorf("write to unlocked account %d: %w", id, domain.ErrInvariantViolation)
	}
	tx.pending[id] = domain.Account{ID: id, Available: newAvailable, Version: newVersion}
	return nil
}

func (tx *lockedTx) Commit() error {
	if tx.done {
		return fmt.Errorf("commit: %w", domain.ErrInvariantViolation)
	}
	defer tx.finish()

	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]domain.Account, 0, len(tx.pending))
	for _, a := range tx.pending {
		records = append(records, a)
	}
	if err := s.appendWAL("commit", records...); err != nil {
		return err
	}
	for id, a := range tx.pending {
		r := tx.locked[id]
		r.available = a.Available
		r.version = a.Version
	}
	return nil
}

func (tx *lockedTx) Rollback() error {
	if tx.done {
		return nil
	}
	tx.finish()
	return nil
}

// finish 釋放所有列鎖
func (tx *lockedTx) finish() {
	tx.done = true
	for _, r := range tx.locked {
		r.release()
	}
	tx.locked = nil
	tx.pending = nil
}

var (
	_ usecase.Store       = (*Store)(nil)
	_ usecase.Provisioner = (*Store)(nil)
)
