package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JoeShih716/go-versioned-ledger/internal/app/account/domain"
)

// DefaultMaxAttempts 樂觀鎖預設的重試上限
const DefaultMaxAttempts = 32767

// OptimisticUpdater 以版本號 CAS 加上有限次數重試的方式更新餘額。
// 讀-改-寫期間不持有任何資料庫鎖；版本衝突時重新讀取再試。
type OptimisticUpdater struct {
	store       Store
	maxAttempts int
	logger      *zap.Logger
}

// OptimisticOption 設定 OptimisticUpdater
type OptimisticOption func(*OptimisticUpdater)

// WithMaxAttempts 設定重試上限，<= 0 時沿用 DefaultMaxAttempts
func WithMaxAttempts(n int) OptimisticOption {
	return func(u *OptimisticUpdater) {
		if n > 0 {
			u.maxAttempts = n
		}
	}
}

// WithOptimisticLogger 設定 logger
func WithOptimisticLogger(logger *zap.Logger) OptimisticOption {
	return func(u *OptimisticUpdater) {
		if logger != nil {
			u.logger = logger
		}
	}
}

func NewOptimisticUpdater(store Store, opts ...OptimisticOption) *OptimisticUpdater {
	u := &OptimisticUpdater{
		store:       store,
		maxAttempts: DefaultMaxAttempts,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// MaxAttempts 目前的重試上限
func (u *OptimisticUpdater) MaxAttempts() int {
	return u.maxAttempts
}

// ApplyDelta 套用金額異動
//
// 流程:
//
//	ReadRow -> ConditionalUpdate(version) -> 受影響列數 0 則重讀重試
//
// 回傳:
//
//	domain.Account: 異動後的帳戶
//	error: domain.ErrAccountNotFound / domain.ErrOptimisticLockExhausted / *domain.StoreError
func (u *OptimisticUpdater) ApplyDelta(ctx context.Context, id, amount int64) (domain.Account, error) {
	attempts := 0
	for {
		current, err := u.store.ReadRow(ctx, id)
		if err != nil {
			return domain.Account{}, err
		}

		next := current.Apply(amount)
		count, err := u.store.ConditionalUpdate(ctx, id, next.Available, current.Version)
		if err != nil {
			return domain.Account{}, err
		}
		u.logger.Debug("conditional update",
			zap.Int64("id", id),
			zap.Int64("version", next.Version),
			zap.Int64("rows_affected", count),
			zap.Int("attempts", attempts))

		if count >= 1 {
			return next, nil
		}

		// 被其他寫入者搶先，重新讀取
		attempts++
		if attempts >= u.maxAttempts {
			u.logger.Warn("update available failed",
				zap.Int64("id", id),
				zap.Int64("version", next.Version),
				zap.Int("attempts", attempts))
			return domain.Account{}, fmt.Errorf("account %d after %d attempts: %w", id, attempts, domain.ErrOptimisticLockExhausted)
		}
	}
}

var _ Updater = (*OptimisticUpdater)(nil)
