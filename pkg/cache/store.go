package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ErrMiss 键不存在
var ErrMiss = errors.New("cache miss")

// 仅当令牌匹配时删除，避免释放他人持有的锁
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// 计数与设置过期在同一脚本内完成；键没有过期时间时补上
var incrWithinScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if redis.call("PTTL", KEYS[1]) < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// Store 对 redis 客户端的薄封装：JSON 缓存、分布式锁、计数器
type Store struct {
	Client *redis.Client
	Prefix string
}

func NewStore(rdb *redis.Client, prefix string) *Store {
	return &Store{Client: rdb, Prefix: prefix}
}

func (s *Store) key(k string) string {
	return s.Prefix + k
}

func (s *Store) GetJSON(ctx context.Context, key string, dest interface{}) error {
	data, err := s.Client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrMiss
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

func (s *Store) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.Client.Set(ctx, s.key(key), data, ttl).Err()
}

func (s *Store) Delete(ctx context.Context, keys ...string) error {
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.key(k)
	}
	return s.Client.Del(ctx, full...).Err()
}

// TryLock 非阻塞加锁，ok 为 false 表示锁已被占用
func (s *Store) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token := uuid.New().String()
	full := s.key(key)

	ok, err := s.Client.SetNX(ctx, full, token, ttl).Result()
	if err != nil || !ok {
		return func() {}, false, err
	}

	release := func() {
		// 请求 ctx 可能已取消，释放使用独立超时
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		releaseScript.Run(rctx, s.Client, []string{full}, token)
	}
	return release, true, nil
}

// IncrWithin 计数加一，键没有过期时间时设置窗口
func (s *Store) IncrWithin(ctx context.Context, key string, window time.Duration) (int64, error) {
	return incrWithinScript.Run(ctx, s.Client, []string{s.key(key)}, window.Milliseconds()).Int64()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.Client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.Client.Close()
}
