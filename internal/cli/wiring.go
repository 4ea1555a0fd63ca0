package cli

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JoeShih716/go-versioned-ledger/internal/app/account/adapter/out/memory"
	mysqladapter "github.com/JoeShih716/go-versioned-ledger/internal/app/account/adapter/out/mysql"
	postgresadapter "github.com/JoeShih716/go-versioned-ledger/internal/app/account/adapter/out/postgres"
	rediscache "github.com/JoeShih716/go-versioned-ledger/internal/app/account/adapter/out/redis"
	"github.com/JoeShih716/go-versioned-ledger/internal/app/account/usecase"
	"github.com/JoeShih716/go-versioned-ledger/internal/config"
	"github.com/JoeShih716/go-versioned-ledger/pkg/logger"
	"github.com/JoeShih716/go-versioned-ledger/pkg/mysql"
	"github.com/JoeShih716/go-versioned-ledger/pkg/postgres"
	"github.com/JoeShih716/go-versioned-ledger/pkg/redis"
	"github.com/JoeShih716/go-versioned-ledger/pkg/wal"
)

// storeProvisioner 三種 driver 都同時實作 Store 與 Provisioner
type storeProvisioner interface {
	usecase.Store
	usecase.Provisioner
}

// backend 持久層與它的連線；close 依建立的反向順序釋放
type backend struct {
	store  storeProvisioner
	closes []func() error
}

func (b *backend) Close() error {
	var errs []error
	for i := len(b.closes) - 1; i >= 0; i-- {
		errs = append(errs, b.closes[i]())
	}
	return errors.Join(errs...)
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	return logger.NewLogger(cfg.Log.Level, cfg.Log.Development)
}

// openStore 依 store.driver 建立持久層
func openStore(ctx context.Context, cfg config.Config, log *zap.Logger) (*backend, error) {
	b := &backend{}
	switch cfg.Store.Driver {
	case config.DriverMySQL:
		client, err := mysql.NewClient(cfg.MySQL, log)
		if err != nil {
			return nil, err
		}
		b.closes = append(b.closes, client.Close)
		store := mysqladapter.NewStore(client)
		if cfg.Store.Migrate {
			if err := store.AutoMigrate(ctx); err != nil {
				_ = b.Close()
				return nil, err
			}
		}
		b.store = store

	case config.DriverPostgres:
		pool, err := postgres.NewPool(ctx, cfg.Postgres, log)
		if err != nil {
			return nil, err
		}
		b.closes = append(b.closes, func() error { pool.Close(); return nil })
		store := postgresadapter.NewStore(pool)
		if cfg.Store.Migrate {
			if err := store.Migrate(ctx); err != nil {
				_ = b.Close()
				return nil, err
			}
		}
		b.store = store

	case config.DriverMemory:
		w, err := wal.Open(cfg.Store.WALPath)
		if err != nil {
			return nil, fmt.Errorf("open wal: %w", err)
		}
		b.closes = append(b.closes, w.Close)
		store, err := memory.NewStore(memory.WithWAL(w))
		if err != nil {
			_ = b.Close()
			return nil, err
		}
		b.store = store

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	log.Info("store opened", zap.String("driver", string(cfg.Store.Driver)))
	return b, nil
}

// openCache 連線 Redis 並建立版本快取；回傳的 client 由呼叫端 Close
func openCache(ctx context.Context, cfg config.Config, log *zap.Logger) (*rediscache.Cache, goredis.UniversalClient, error) {
	client, err := redis.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		return nil, nil, err
	}
	cache, err := rediscache.NewCache(client, rediscache.WithTTL(cfg.Cache.TTL), rediscache.WithLogger(log))
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return cache, client, nil
}

// newService 組裝 AccountService；策略在啟動時決定
func newService(cfg config.Config, store usecase.Store, cache usecase.Cache, log *zap.Logger) (*usecase.AccountService, error) {
	strategy, err := usecase.ParseStrategy(cfg.Updater.Strategy)
	if err != nil {
		return nil, err
	}
	updater, err := usecase.NewUpdater(strategy, store, cfg.Updater.MaxAttempts, log)
	if err != nil {
		return nil, err
	}
	log.Info("updater ready",
		zap.String("strategy", string(strategy)),
		zap.Int("max_attempts", cfg.Updater.MaxAttempts))
	return usecase.NewAccountService(store, updater, cache, log), nil
}
