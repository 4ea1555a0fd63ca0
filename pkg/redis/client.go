package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Config Redis 連線配置
//
// Addrs 只有一個時為單機；多個時為 Cluster；設定 MasterName 則走 Sentinel
type Config struct {
	Addrs      []string `yaml:"addrs"`
	Password   string   `yaml:"password"`
	DB         int      `yaml:"db"`
	MasterName string   `yaml:"master_name"`
	PoolSize   int      `yaml:"pool_size"`

	MaxRetries    int           `yaml:"max_retries"`
	RetryInterval time.Duration `yaml:"retry_interval"`
}

// ApplyDefaults 補全 yaml 沒寫的欄位
func (c *Config) ApplyDefaults() {
	if len(c.Addrs) == 0 {
		c.Addrs = []string{"localhost:6379"}
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 10
	}
	if c.RetryInterval == 0 {
		c.RetryInterval = 2 * time.Second
	}
}

// UniversalOptions 轉為 go-redis 的選項
func (c *Config) UniversalOptions() *goredis.UniversalOptions {
	return &goredis.UniversalOptions{
		Addrs:      c.Addrs,
		Password:   c.Password,
		DB:         c.DB,
		MasterName: c.MasterName,
		PoolSize:   c.PoolSize,
	}
}

// NewClient 建立 UniversalClient 並等待 PING 成功
//
// 回傳值:
//
//	goredis.UniversalClient: 呼叫端負責 Close
//	error: 重試用盡仍無法連線
func NewClient(ctx context.Context, cfg Config, log *zap.Logger) (goredis.UniversalClient, error) {
	if log == nil {
		log = zap.NewNop()
	}
	cfg.ApplyDefaults()

	client := goredis.NewUniversalClient(cfg.UniversalOptions())

	var err error
	for i := 0; i < cfg.MaxRetries; i++ {
		if err = client.Ping(ctx).Err(); err == nil {
			return client, nil
		}
		if i < cfg.MaxRetries-1 {
			log.Warn("redis not ready, retrying",
				zap.Int("attempt", i+1),
				zap.Int("max_retries", cfg.MaxRetries),
				zap.Strings("addrs", cfg.Addrs),
				zap.Error(err))
			select {
			case <-ctx.Done():
				_ = client.Close()
				return nil, ctx.Err()
			case <-time.After(cfg.RetryInterval):
			}
		}
	}
	_ = client.Close()
	return nil, fmt.Errorf("failed to connect to redis after %d attempts: %w", cfg.MaxRetries, err)
}
