// internal/service/scheduler/infrastructure/event_redis_adapter.go
package infrastructure

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"

	"promo/internal/pkg/keys"
	"promo/internal/pkg/redis"
)

const (
	eventScheduleScriptName = "event_schedule"
	eventOpenScriptName     = "event_open"
)

// EventRedisAdapter 是 port.ScheduleStore 接口的 Redis 实现。
type EventRedisAdapter struct {
	redisClient *redis.Client
	keys        *keys.Builder
}

func NewEventRedisAdapter(redisClient *redis.Client, keyBuilder *keys.Builder) (*EventRedisAdapter, error) {
	scripts := map[string]string{
		eventScheduleScriptName: eventScheduleScript,
		eventOpenScriptName:     eventOpenScript,
	}
	for name, content := range scripts {
		if err := redisClient.LoadScriptFromContent(name, content); err != nil {
			return nil, errors.Wrapf(err, "failed to load critical scheduler script %s", name)
		}
	}
	return &EventRedisAdapter{redisClient: redisClient, keys: keyBuilder}, nil
}

func (a *EventRedisAdapter) Schedule(ctx context.Context, eventID string, delay time.Duration) error {
	statusKey, err := a.keys.EventStatus(eventID)
	if err != nil {
		return err
	}
	startKey, err := a.keys.EventStartFlag(eventID)
	if err != nil {
		return err
	}

	delaySec := int64(delay / time.Second)
	if delaySec <= 0 {
		delaySec = 1
	}
	dueAt := time.Now().Add(delay).Unix()

	_, err = a.redisClient.RunScript(ctx, eventScheduleScriptName,
		[]string{statusKey, startKey, a.keys.EventSchedule()},
		delaySec, dueAt, eventID)
	if err != nil {
		return errors.Wrap(err, "scheduler adapter failed to run schedule script")
	}
	return nil
}

func (a *EventRedisAdapter) TryOpen(ctx context.Context, eventID string) (bool, error) {
	statusKey, err := a.keys.EventStatus(eventID)
	if err != nil {
		return false, err
	}
	result, err := a.redisClient.RunScript(ctx, eventOpenScriptName, []string{statusKey})
	if err != nil {
		return false, errors.Wrap(err, "scheduler adapter failed to run open script")
	}
	code, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected result type from Lua script: %T", result)
	}
	return code == 1, nil
}

func (a *EventRedisAdapter) DueEvents(ctx context.Context, now time.Time) ([]string, error) {
	return a.redisClient.GetClient().ZRangeByScore(ctx, a.keys.EventSchedule(), &goredis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.Unix(), 10),
		Count: 256,
	}).Result()
}

func (a *EventRedisAdapter) RemoveFromSchedule(ctx context.Context, eventID string) error {
	return a.redisClient.GetClient().ZRem(ctx, a.keys.EventSchedule(), eventID).Err()
}

var eventScheduleScript = `
-- KEYS[1]: 状态键  KEYS[2]: 开抢引信  KEYS[3]: 兜底 zset
-- ARGV[1]: 引信 TTL 秒  ARGV[2]: 理论开抢时刻(unix)  ARGV[3]: 活动 ID

redis.call('set', KEYS[1], 'PENDING')
redis.call('set', KEYS[2], '1', 'EX', ARGV[1])
redis.call('zadd', KEYS[3], ARGV[2], ARGV[3])
return 1
`

var eventOpenScript = `
-- KEYS[1]: 状态键
-- 通知和兜底可能同时到达，只有第一个完成 PENDING -> OPEN 的迁移

local status = redis.call('get', KEYS[1])
if status == 'OPEN' then
    return 0
end
redis.call('set', KEYS[1], 'OPEN')
return 1
`
