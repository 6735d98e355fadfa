package history

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"chatbi/internal/config"
	"chatbi/internal/errors"
	"chatbi/internal/logger"
)

// ScoredMember 有序集合成员及其计数
type ScoredMember struct {
	Member string
	Score  float64
}

// Store 行为历史存储抽象
type Store interface {
	ListPush(ctx context.Context, key, value string) error
	ListTrim(ctx context.Context, key string, start, stop int64) error
	ListRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	Get(ctx context.Context, key string) (string, bool, error)
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error
	SortedIncr(ctx context.Context, key, member string, delta float64) error
	SortedTopDesc(ctx context.Context, key string, limit int64) ([]ScoredMember, error)
	SortedScore(ctx context.Context, key, member string) (float64, bool, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
	Ping(ctx context.Context) error
}

// RedisStore Redis实现
type RedisStore struct {
	client *redis.Client
	logger *logger.Logger
}

// NewRedisStore 创建Redis行为历史存储
func NewRedisStore(cfg *config.RedisConfig) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &RedisStore{
		client: client,
		logger: logger.NewLogger("history-store"),
	}
}

func (rs *RedisStore) ListPush(ctx context.Context, key, value string) error {
	if err := rs.client.LPush(ctx, key, value).Err(); err != nil {
		return errors.ErrHistoryStore("LPUSH failed", err).
			WithContext(map[string]interface{}{"key": key})
	}
	return nil
}

func (rs *RedisStore) ListTrim(ctx context.Context, key string, start, stop int64) error {
	if err := rs.client.LTrim(ctx, key, start, stop).Err(); err != nil {
		return errors.ErrHistoryStore("LTRIM failed", err).
			WithContext(map[string]interface{}{"key": key})
	}
	return nil
}

func (rs *RedisStore) ListRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	values, err := rs.client.LRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, errors.ErrHistoryStore("LRANGE failed", err).
			WithContext(map[string]interface{}{"key": key})
	}
	return values, nil
}

func (rs *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := rs.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.ErrHistoryStore("GET failed", err).
			WithContext(map[string]interface{}{"key": key})
	}
	return value, true, nil
}

func (rs *RedisStore) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := rs.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return errors.ErrHistoryStore("SETEX failed", err).
			WithContext(map[string]interface{}{"key": key})
	}
	return nil
}

func (rs *RedisStore) SortedIncr(ctx context.Context, key, member string, delta float64) error {
	if err := rs.client.ZIncrBy(ctx, key, delta, member).Err(); err != nil {
		return errors.ErrHistoryStore("ZINCRBY failed", err).
			WithContext(map[string]interface{}{"key": key})
	}
	return nil
}

func (rs *RedisStore) SortedTopDesc(ctx context.Context, key string, limit int64) ([]ScoredMember, error) {
	if limit <= 0 {
		return nil, nil
	}

	values, err := rs.client.ZRevRangeWithScores(ctx, key, 0, limit-1).Result()
	if err != nil {
		return nil, errors.ErrHistoryStore("ZREVRANGE failed", err).
			WithContext(map[string]interface{}{"key": key})
	}

	members := make([]ScoredMember, 0, len(values))
	for _, z := range values {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		members = append(members, ScoredMember{Member: member, Score: z.Score})
	}
	return members, nil
}

func (rs *RedisStore) SortedScore(ctx context.Context, key, member string) (float64, bool, error) {
	score, err := rs.client.ZScore(ctx, key, member).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.ErrHistoryStore("ZSCORE failed", err).
			WithContext(map[string]interface{}{"key": key})
	}
	return score, true, nil
}

// Scan 遍历匹配模式的键，仅用于低频的反向序列查找
func (rs *RedisStore) Scan(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	var cursor uint64
	for {
		batch, next, err := rs.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, errors.ErrHistoryStore("SCAN failed", err).
				WithContext(map[string]interface{}{"pattern": pattern})
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}

func (rs *RedisStore) Ping(ctx context.Context) error {
	if err := rs.client.Ping(ctx).Err(); err != nil {
		return errors.ErrHistoryStore("PING failed", err)
	}
	return nil
}

// Close 关闭Redis连接
func (rs *RedisStore) Close() error {
	return rs.client.Close()
}
