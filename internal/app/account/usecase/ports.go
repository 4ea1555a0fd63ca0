package usecase

import (
	"context"

	"github.com/JoeShih716/go-versioned-ledger/internal/app/account/domain"
)

// Store 是帳戶資料的持久層 (唯一的真實來源)。
// 所有 I/O 錯誤都必須以 *domain.StoreError 回傳，不可吞掉。
type Store interface {
	// Count 帳戶總數
	Count(ctx context.Context) (int64, error)
	// ReadRow 讀取帳戶目前狀態，不存在時回傳 domain.ErrAccountNotFound
	ReadRow(ctx context.Context, id int64) (domain.Account, error)
	// ConditionalUpdate 僅在 version 仍為 expectedVersion 時寫入
	// available=newAvailable, version=version+1，回傳受影響列數
	ConditionalUpdate(ctx context.Context, id, newAvailable, expectedVersion int64) (int64, error)
	// BeginLocked 開啟一個關閉 auto-commit 的交易，供悲觀鎖使用
	BeginLocked(ctx context.Context) (LockedTx, error)
}

// LockedTx 是持有列鎖的交易。
// Commit 之後呼叫 Rollback 必須是 no-op，方便以 defer 釋放。
type LockedTx interface {
	// ReadRowForUpdate 讀取並以排他鎖鎖定該列 (SELECT ... FOR UPDATE)
	ReadRowForUpdate(ctx context.Context, id int64) (domain.Account, error)
	// WriteRowLocked 覆寫已鎖定的列
	WriteRowLocked(ctx context.Context, id, newAvailable, newVersion int64) error
	Commit() error
	Rollback() error
}

// Provisioner 建立帳戶 (available=0, version=0)
type Provisioner interface {
	// CreateAccount 已存在時回傳 domain.ErrAccountAlreadyExists
	CreateAccount(ctx context.Context, id int64) (domain.Account, error)
	// CreateAccounts 批次建立 [from, to]，已存在的 ID 略過，回傳實際新增數量
	CreateAccounts(ctx context.Context, from, to, batchSize int64) (int64, error)
}

// Cache 是依版本排序的帳戶快取 (可隨時丟棄重建的衍生資料)
type Cache interface {
	// Put 寫入快照並移除所有低於該版本的舊快照
	Put(ctx context.Context, account domain.Account) error
	// GetLatest 取得最高版本的快照；沒有時 ok=false 且 err=nil
	GetLatest(ctx context.Context, id int64) (account domain.Account, ok bool, err error)
}

// Updater 將金額異動套用到 Store，回傳異動後的帳戶 (version = 讀到的版本 + 1)
type Updater interface {
	ApplyDelta(ctx context.Context, id, amount int64) (domain.Account, error)
}
