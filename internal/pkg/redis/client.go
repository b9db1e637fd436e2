// internal/pkg/redis/client.go
package redis

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Client 在 go-redis 客户端之上维护一个显式的 Lua 脚本目录。
// 脚本在服务初始化阶段通过 LoadScriptFromContent 注册进实例，
// 不使用任何包级别的全局注册表。
type Client struct {
	rdb redis.UniversalClient

	mu      sync.RWMutex
	scripts map[string]*redis.Script
}

// NewClient 基于已有连接创建客户端封装。
func NewClient(rdb redis.UniversalClient) *Client {
	return &Client{
		rdb:     rdb,
		scripts: make(map[string]*redis.Script),
	}
}

// Connect 按地址建立单实例连接并做一次 PING 探活。
func Connect(ctx context.Context, addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return NewClient(rdb), nil
}

// LoadScriptFromContent 将一段 Lua 脚本以给定名称注册到脚本目录中。
// 重复注册同名脚本视为编程错误。
func (c *Client) LoadScriptFromContent(name, content string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.scripts[name]; exists {
		return fmt.Errorf("script %q is already registered", name)
	}
	c.scripts[name] = redis.NewScript(content)
	return nil
}

// RunScript 执行已注册的脚本。go-redis 的 Script.Run 优先走 EVALSHA，
// 脚本未缓存时自动降级为 EVAL，这里不需要额外处理 NOSCRIPT。
func (c *Client) RunScript(ctx context.Context, name string, keys []string, args ...interface{}) (interface{}, error) {
	c.mu.RLock()
	script, ok := c.scripts[name]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("script %q is not registered", name)
	}
	return script.Run(ctx, c.rdb, keys, args...).Result()
}

// GetClient 暴露底层客户端，供 zset、pubsub 等非脚本操作使用。
func (c *Client) GetClient() redis.UniversalClient {
	return c.rdb
}

// Close 关闭底层连接。
func (c *Client) Close() error {
	return c.rdb.Close()
}
