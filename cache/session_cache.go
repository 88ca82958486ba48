package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// SessionCache 在 Redis 中登记有效的 refresh token 会话。
// 键为 refresh token 的 jti，值为用户ID，TTL 与 refresh token 有效期一致。
type SessionCache struct {
	client *redis.Client
}

// NewSessionCache 创建会话缓存
func NewSessionCache(client *redis.Client) *SessionCache {
	return &SessionCache{client: client}
}

func sessionKey(jti string) string {
	return fmt.Sprintf("session:refresh:%s", jti)
}

// Put 登记 refresh 会话
func (c *SessionCache) Put(ctx context.Context, jti string, userID int64, ttl time.Duration) error {
	if c.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}
	if err := c.client.Set(ctx, sessionKey(jti), userID, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store refresh session: %w", err)
	}
	return nil
}

// Get 查询 refresh 会话是否仍然有效
func (c *SessionCache) Get(ctx context.Context, jti string) (int64, bool, error) {
	if c.client == nil {
		return 0, false, fmt.Errorf("Redis client not initialized")
	}
	val, err := c.client.Get(ctx, sessionKey(jti)).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get refresh session: %w", err)
	}
	userID, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt refresh session value: %w", err)
	}
	return userID, true, nil
}

// Delete 撤销 refresh 会话（轮换或登出）
func (c *SessionCache) Delete(ctx context.Context, jti string) error {
	if c.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}
	if err := c.client.Del(ctx, sessionKey(jti)).Err(); err != nil {
		return fmt.Errorf("failed to delete refresh session: %w", err)
	}
	return nil
}
