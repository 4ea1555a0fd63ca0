package usecase

import (
	"context"

	"go.uber.org/zap"

	"github.com/JoeShih716/go-versioned-ledger/internal/app/account/domain"
)

// PessimisticUpdater 以 SELECT ... FOR UPDATE 排他鎖序列化同一帳戶的所有寫入。
// 不需要重試，但會阻塞直到取得列鎖 (受資料庫 lock-wait timeout 限制)。
type PessimisticUpdater struct {
	store  Store
	logger *zap.Logger
}

func NewPessimisticUpdater(store Store, logger *zap.Logger) *PessimisticUpdater {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PessimisticUpdater{
		store:  store,
		logger: logger,
	}
}

// ApplyDelta 套用金額異動；任何錯誤都會 Rollback，資料庫不會留下部分寫入
func (u *PessimisticUpdater) ApplyDelta(ctx context.Context, id, amount int64) (domain.Account, error) {
	tx, err := u.store.BeginLocked(ctx)
	if err != nil {
		return domain.Account{}, err
	}
	// Commit 之後 Rollback 是 no-op
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil {
			u.logger.Warn("rollback failed", zap.Int64("id", id), zap.Error(rbErr))
		}
	}()

	current, err := tx.ReadRowForUpdate(ctx, id)
	if err != nil {
		return domain.Account{}, err
	}

	next := current.Apply(amount)
	if err := tx.WriteRowLocked(ctx, id, next.Available, next.Version); err != nil {
		return domain.Account{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Account{}, err
	}

	u.logger.Debug("locked update committed",
		zap.Int64("id", id),
		zap.Int64("version", next.Version))
	return next, nil
}

var _ Updater = (*PessimisticUpdater)(nil)
