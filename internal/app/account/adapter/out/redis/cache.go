package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JoeShih716/go-versioned-ledger/internal/app/account/domain"
	"github.com/JoeShih716/go-versioned-ledger/internal/app/account/usecase"
)

// DefaultTTL 快取在最後一次 Put 之後保留 24 小時
const DefaultTTL = 24 * time.Hour

// ErrNilClient 未提供 redis client
var ErrNilClient = errors.New("redis cache: nil client")

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// putScript 在同一個 key 上原子地執行:
//  1. 沒有任何成員的版本 >= ARGV[1] 時才寫入 (同版本只保留一份，較舊的寫入者不會蓋過新版本)
//  2. 移除所有版本小於 ARGV[1] 的成員
//  3. 重設過期時間
//
// KEYS[1] = account:<id>, ARGV[1] = version, ARGV[2] = snapshot, ARGV[3] = ttl 秒數
// 回傳 1 代表寫入了新成員，0 代表略過
var putScript = goredis.NewScript(`
local added = 0
if redis.call('ZCOUNT', KEYS[1], ARGV[1], '+inf') == 0 then
	added = redis.call('ZADD', KEYS[1], ARGV[1], ARGV[2])
end
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', '(' .. ARGV[1])
redis.call('EXPIRE', KEYS[1], ARGV[3])
return added
`)

// Cache 以 Redis Sorted Set 實作依版本排序的帳戶快取。
// 每個帳戶一個 key，成員為 JSON 快照，score 為版本號。
type Cache struct {
	rdb    goredis.UniversalClient
	ttl    time.Duration
	logger *zap.Logger
}

// Option 設定 Cache
type Option func(*Cache)

// WithTTL 設定保留時間，<= 0 時沿用 DefaultTTL
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithLogger 設定 logger
func WithLogger(logger *zap.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCache 建立快取；client 的生命週期由呼叫端管理
func NewCache(client goredis.UniversalClient, opts ...Option) (*Cache, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	c := &Cache{
		rdb:    client,
		ttl:    DefaultTTL,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Key 帳戶的快取 key
func Key(id int64) string {
	return "account:" + strconv.FormatInt(id, 10)
}

// Encode 將帳戶序列化為快取成員
func Encode(account domain.Account) (string, error) {
	raw, err := json.Marshal(account)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// Decode 將快取成員還原為帳戶
func Decode(member string) (domain.Account, error) {
	var account domain.Account
	if err := json.UnmarshalFromString(member, &account); err != nil {
		return domain.Account{}, err
	}
	return account, nil
}

// Put 寫入快照，並移除所有低於該版本的舊快照。
// 較舊的寫入者晚到時不會寫入，存活的成員永遠是曾經 Put 過的最高版本。
func (c *Cache) Put(ctx context.Context, account domain.Account) error {
	if account.Version < 0 {
		return fmt.Errorf("account %d version %d: %w", account.ID, account.Version, domain.ErrInvalidVersion)
	}

	key := Key(account.ID)
	member, err := Encode(account)
	if err != nil {
		return fmt.Errorf("encode account %d: %w", account.ID, err)
	}

	seconds := max(int64(c.ttl/time.Second), 1)

	c.logger.Debug("caching", zap.Int64("id", account.ID), zap.Int64("version", account.Version))
	added, err := putScript.Run(ctx, c.rdb, []string{key}, account.Version, member, seconds).Int64()
	if err != nil {
		return &domain.CacheError{Op: "put", Key: key, Err: err}
	}
	if added == 0 {
		c.logger.Debug("same or newer version already cached", zap.Int64("id", account.ID), zap.Int64("version", account.Version))
	}
	return nil
}

// GetLatest 取得最高版本的快照
func (c *Cache) GetLatest(ctx context.Context, id int64) (domain.Account, bool, error) {
	key := Key(id)
	members, err := c.rdb.ZRevRangeByScore(ctx, key, &goredis.ZRangeBy{
		Min:    "-inf",
		Max:    "+inf",
		Offset: 0,
		Count:  1,
	}).Result()
	if err != nil {
		return domain.Account{}, false, &domain.CacheError{Op: "get", Key: key, Err: err}
	}
	if len(members) == 0 {
		return domain.Account{}, false, nil
	}
	account, err := Decode(members[0])
	if err != nil {
		return domain.Account{}, false, fmt.Errorf("decode cached member of %s: %w", key, err)
	}
	return account, true, nil
}

var _ usecase.Cache = (*Cache)(nil)
