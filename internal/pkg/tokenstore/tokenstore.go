package tokenstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	tokenKeyPrefix = "taskmanager:token:"
	userSetPrefix  = "taskmanager:tokens:user:"
)

// Store 在 Redis 中维护 JWT 的 jti 白名单。
//
// 令牌本身是自包含的 JWT，但只有 jti 仍在白名单里的令牌才被接受，
// 这样注销可以一次撤销某个用户的全部令牌。
type Store struct {
	rdb *redis.Client
}

// New 创建 Store。
func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

func tokenKey(userID uint, jti string) string {
	return fmt.Sprintf("%s%d:%s", tokenKeyPrefix, userID, jti)
}

func userSetKey(userID uint) string {
	return fmt.Sprintf("%s%d", userSetPrefix, userID)
}

// Save 登记一个新签发的 jti，TTL 与令牌有效期一致。
func (s *Store) Save(ctx context.Context, userID uint, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, tokenKey(userID, jti), "1", ttl)
	pipe.SAdd(ctx, userSetKey(userID), jti)
	// 集合自身也要过期，否则注销前一直残留 jti
	pipe.Expire(ctx, userSetKey(userID), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("token save: %w", err)
	}
	return nil
}

// Exists 检查某个 jti 是否仍然有效。
func (s *Store) Exists(ctx context.Context, userID uint, jti string) (bool, error) {
	n, err := s.rdb.Exists(ctx, tokenKey(userID, jti)).Result()
	if err != nil {
		return false, fmt.Errorf("token exists: %w", err)
	}
	return n > 0, nil
}

// RevokeAll 撤销用户的全部令牌。没有令牌时也不报错（幂等）。
func (s *Store) RevokeAll(ctx context.Context, userID uint) error {
	jtis, err := s.rdb.SMembers(ctx, userSetKey(userID)).Result()
	if err != nil {
		return fmt.Errorf("token revoke: %w", err)
	}

	keys := make([]string, 0, len(jtis)+1)
	for _, jti := range jtis {
		keys = append(keys, tokenKey(userID, jti))
	}
	keys = append(keys, userSetKey(userID))

	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("token revoke: %w", err)
	}
	return nil
}
