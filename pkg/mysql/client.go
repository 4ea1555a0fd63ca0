package mysql

import (
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Client 封裝 GORM DB 實例
type Client struct {
	db *gorm.DB
}

// NewClient 建立並回傳一個新的 MySQL 客戶端實例 (GORM)
//
// 參數:
//
//	cfg: Config - MySQL 連線配置
//	log: *zap.Logger - 記錄重試過程，nil 時不記錄
//
// 回傳值:
//
//	*Client: 封裝後的 MySQL 客戶端
//	error: 若連線失敗則回傳錯誤
func NewClient(cfg Config, log *zap.Logger) (*Client, error) {
	if log == nil {
		log = zap.NewNop()
	}
	cfg.ApplyDefaults()

	gormConfig := &gorm.Config{
		// 帳戶的交易邊界由 adapter 自行控制 (條件更新為單一語句，悲觀鎖手動 Begin)
		SkipDefaultTransaction: true,
		Logger:                 NewGormLogger(cfg.LogLevel),
	}

	db, err := openWithRetry(cfg, log, func() (*gorm.DB, error) {
		return gorm.Open(mysql.Open(cfg.DSN()), gormConfig)
	})
	if err != nil {
		return nil, err
	}

	// 取得底層 sql.DB 物件以設定連線池
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.db: %w", err)
	}

	// 連線池上限同時也是同時持有列鎖的交易上限
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return &Client{db: db}, nil
}

// openWithRetry 反覆開啟並 Ping 資料庫，失敗的連線池在重試前關閉
func openWithRetry(cfg Config, log *zap.Logger, open func() (*gorm.DB, error)) (*gorm.DB, error) {
	var err error
	for i := 0; i < cfg.MaxRetries; i++ {
		var db *gorm.DB
		db, err = open()
		if err == nil {
			var rawDB *sql.DB
			if rawDB, err = db.DB(); err == nil {
				if err = rawDB.Ping(); err == nil {
					return db, nil
				}
			}
		}
		closeQuietly(db)

		if i < cfg.MaxRetries-1 {
			log.Warn("mysql not ready, retrying",
				zap.Int("attempt", i+1),
				zap.Int("max_retries", cfg.MaxRetries),
				zap.Duration("interval", cfg.RetryInterval),
				zap.Error(err))
			time.Sleep(cfg.RetryInterval)
		}
	}
	return nil, fmt.Errorf("failed to connect to mysql after %d attempts: %w", cfg.MaxRetries, err)
}

// gorm.Open 在自動 Ping 失敗時仍會回傳已開啟的 DB
func closeQuietly(db *gorm.DB) {
	if db == nil {
		return
	}
	if rawDB, err := db.DB(); err == nil {
		_ = rawDB.Close()
	}
}

// NewClientFromDB 包裝已開啟的 *gorm.DB (例如測試用的 SQLite)
func NewClientFromDB(db *gorm.DB) *Client {
	return &Client{db: db}
}

// DB 回傳底層的 *gorm.DB 實例，供 adapter 使用
func (c *Client) DB() *gorm.DB {
	return c.db
}

// Close 關閉資料庫連線
func (c *Client) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// NewGormLogger 根據配置建立 GORM Logger
func NewGormLogger(level string) logger.Interface {
	var logLevel logger.LogLevel
	switch level {
	case "info":
		logLevel = logger.Info
	case "warn":
		logLevel = logger.Warn
	case "error":
		logLevel = logger.Error
	case "silent":
		logLevel = logger.Silent
	default:
		logLevel = logger.Error // 預設只記錄錯誤
	}

	return logger.Default.LogMode(logLevel)
}
