package usecase

import (
	"fmt"

	"go.uber.org/zap"
)

// Strategy 更新策略，啟動時決定，執行期間不切換
type Strategy string

const (
	StrategyOptimistic  Strategy = "optimistic"
	StrategyPessimistic Strategy = "pessimistic"
)

// ParseStrategy 解析設定檔中的策略字串
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyOptimistic, StrategyPessimistic:
		return Strategy(s), nil
	default:
		return "", fmt.Errorf("unknown updater strategy %q", s)
	}
}

// NewUpdater 依策略建立 Updater
func NewUpdater(strategy Strategy, store Store, maxAttempts int, logger *zap.Logger) (Updater, error) {
	switch strategy {
	case StrategyOptimistic:
		return NewOptimisticUpdater(store, WithMaxAttempts(maxAttempts), WithOptimisticLogger(logger)), nil
	case StrategyPessimistic:
		return NewPessimisticUpdater(store, logger), nil
	default:
		return nil, fmt.Errorf("unknown updater strategy %q", strategy)
	}
}
