package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JoeShih716/go-versioned-ledger/internal/app/account/domain"
)

// AccountService 是核心業務邏輯層：
// 讀取先查快取，未命中再讀資料庫並回填；寫入先更新資料庫，成功後才寫快取。
type AccountService struct {
	store   Store
	updater Updater
	cache   Cache
	logger  *zap.Logger
}

func NewAccountService(store Store, updater Updater, cache Cache, logger *zap.Logger) *AccountService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountService{
		store:   store,
		updater: updater,
		cache:   cache,
		logger:  logger,
	}
}

// Read 取得帳戶最新快照
func (s *AccountService) Read(ctx context.Context, id int64) (domain.Account, error) {
	account, ok, err := s.cache.GetLatest(ctx, id)
	if err != nil {
		return domain.Account{}, err
	}
	if ok {
		return account, nil
	}

	s.logger.Debug("cache miss", zap.Int64("id", id))
	account, err = s.store.ReadRow(ctx, id)
	if err != nil {
		return domain.Account{}, err
	}
	if err := s.cache.Put(ctx, account); err != nil {
		return domain.Account{}, err
	}
	return account, nil
}

// Write 套用金額異動；資料庫失敗時不碰快取。
// 提交之後快取寫入失敗會回傳已提交的帳戶以及 domain.ErrCommittedNotCached，
// 與提交前的失敗區分開來，呼叫端不可重試。
func (s *AccountService) Write(ctx context.Context, id, amount int64) (domain.Account, error) {
	account, err := s.updater.ApplyDelta(ctx, id, amount)
	if err != nil {
		return domain.Account{}, err
	}
	if err := s.cache.Put(ctx, account); err != nil {
		s.logger.Warn("cache put after commit failed",
			zap.Int64("id", account.ID),
			zap.Int64("version", account.Version),
			zap.Error(err))
		return account, fmt.Errorf("account %d version %d: %w: %w", account.ID, account.Version, domain.ErrCommittedNotCached, err)
	}
	return account, nil
}

// Count 帳戶總數 (直接查資料庫)
func (s *AccountService) Count(ctx context.Context) (int64, error) {
	return s.store.Count(ctx)
}
