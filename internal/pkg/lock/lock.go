// internal/pkg/lock/lock.go
package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// 只有持有者才能解锁，用 value 比对保证锁过期后被别的实例抢到时，
// 旧持有者的延迟 Unlock 不会误删新锁。
const unlockScript = "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('del', KEYS[1]) else return 0 end"

// Locker 是基于 SetNX 的短时分布式锁。与阻塞式队列锁不同，TryLock
// 抢不到就立刻返回 false —— 调度去重场景下抢锁失败意味着别的实例
// 正在处理，本实例直接跳过即可。
type Locker struct {
	client redis.UniversalClient
	key    string
	value  string
}

// NewLocker 创建锁实例，value 使用随机 uuid 标识持有者。
func NewLocker(client redis.UniversalClient, key string) *Locker {
	return &Locker{
		client: client,
		key:    key,
		value:  uuid.New().String(),
	}
}

// TryLock 尝试获取锁，ttl 是锁的自动过期时间，防止持有者崩溃后死锁。
func (l *Locker) TryLock(ctx context.Context, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.value, ttl).Result()
}

// Unlock 释放锁。锁已过期或被他人持有时静默返回 nil，释放路径
// 必须总能走完。
func (l *Locker) Unlock(ctx context.Context) error {
	return l.client.Eval(ctx, unlockScript, []string{l.key}, l.value).Err()
}
