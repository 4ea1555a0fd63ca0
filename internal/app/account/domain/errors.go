package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrAccountNotFound 找不到帳戶
	ErrAccountNotFound = errors.New("account not found")

	// ErrAccountAlreadyExists 帳戶已存在
	ErrAccountAlreadyExists = errors.New("account already exists")

	// ErrInvalidAccountID 帳戶 ID 不合法 (負數)
	ErrInvalidAccountID = errors.New("invalid account id")

	// ErrInvalidVersion 版本號不合法 (負數)
	ErrInvalidVersion = errors.New("invalid version")

	// ErrTransientStore 資料庫連線、逾時或 SQL 錯誤，可由呼叫端重試
	ErrTransientStore = errors.New("transient store failure")

	// ErrTransientCache 快取連線或逾時錯誤
	ErrTransientCache = errors.New("transient cache failure")

	// ErrOptimisticLockExhausted 樂觀鎖重試次數用盡
	ErrOptimisticLockExhausted = errors.New("optimistic lock attempts exhausted")

	// ErrCommittedNotCached 寫入已提交，但快取沒有更新。
	// 呼叫端不可重試 (會重複套用金額)，快取會在下一次寫入時修正
	ErrCommittedNotCached = errors.New("write committed but cache not updated")

	// ErrInvariantViolation 協作元件的設定錯誤 (例如鎖定讀取不在交易內)
	ErrInvariantViolation = errors.New("invariant violation")
)

// ValidateID 帳戶 ID 不可為負數
func ValidateID(id int64) error {
	if id < 0 {
		return fmt.Errorf("account %d: %w", id, ErrInvalidAccountID)
	}
	return nil
}

// StoreError 包裝資料庫層的 I/O 錯誤。
// errors.Is(err, ErrTransientStore) 成立，同時保留原始錯誤供 errors.Is/As 使用。
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool { return target == ErrTransientStore }

// NewStoreError 以 op 包裝 err；err 為 nil 時回傳 nil
func NewStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}

// CacheError 包裝快取層的 I/O 錯誤
type CacheError struct {
	Op  string
	Key string
	Err error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *CacheError) Unwrap() error { return e.Err }

func (e *CacheError) Is(target error) bool { return target == ErrTransientCache }
