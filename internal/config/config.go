package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/JoeShih716/go-versioned-ledger/internal/app/account/usecase"
	"github.com/JoeShih716/go-versioned-ledger/pkg/mysql"
	"github.com/JoeShih716/go-versioned-ledger/pkg/postgres"
	"github.com/JoeShih716/go-versioned-ledger/pkg/redis"
)

// Driver 持久層種類
type Driver string

const (
	DriverMySQL    Driver = "mysql"
	DriverPostgres Driver = "postgres"
	DriverMemory   Driver = "memory"
)

type Config struct {
	Store    StoreConfig     `yaml:"store"`
	MySQL    mysql.Config    `yaml:"mysql"`
	Postgres postgres.Config `yaml:"postgres"`
	Redis    redis.Config    `yaml:"redis"`
	Updater  UpdaterConfig   `yaml:"updater"`
	Cache    CacheConfig     `yaml:"cache"`
	GRPC     GRPCConfig      `yaml:"grpc"`
	Log      LogConfig       `yaml:"log"`
}

type StoreConfig struct {
	Driver Driver `yaml:"driver"`
	// WALPath 只有 memory driver 使用
	WALPath string `yaml:"wal_path"`
	// Migrate 啟動時建立 account 表
	Migrate bool `yaml:"migrate"`
}

type UpdaterConfig struct {
	Strategy    string `yaml:"strategy"`
	MaxAttempts int    `yaml:"max_attempts"`
}

type CacheConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

type GRPCConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default 回傳全部使用預設值的設定
func Default() Config {
	var cfg Config
	cfg.applyDefaults()
	return cfg
}

// Load 讀取 YAML 設定檔並補全預設值；path 為空時只回傳預設值
func Load(path string) (Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyDefaults 補全 yaml 沒寫的欄位
func (c *Config) applyDefaults() {
	if c.Store.Driver == "" {
		c.Store.Driver = DriverMySQL
	}
	if c.Store.WALPath == "" {
		c.Store.WALPath = "wal.log"
	}
	if c.Updater.Strategy == "" {
		c.Updater.Strategy = string(usecase.StrategyOptimistic)
	}
	if c.Updater.MaxAttempts == 0 {
		c.Updater.MaxAttempts = usecase.DefaultMaxAttempts
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = 24 * time.Hour
	}
	if c.GRPC.Addr == "" {
		c.GRPC.Addr = ":50051"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	c.MySQL.ApplyDefaults()
	c.Postgres.ApplyDefaults()
	c.Redis.ApplyDefaults()
}

// Validate 檢查列舉值與數值範圍
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverMySQL, DriverPostgres, DriverMemory:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if _, err := usecase.ParseStrategy(c.Updater.Strategy); err != nil {
		return err
	}
	if c.Updater.MaxAttempts < 0 {
		return fmt.Errorf("updater.max_attempts must be positive, got %d", c.Updater.MaxAttempts)
	}
	if c.Cache.TTL < time.Second {
		return fmt.Errorf("cache.ttl must be at least 1s, got %s", c.Cache.TTL)
	}
	return nil
}
