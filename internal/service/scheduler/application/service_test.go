package application_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"promo/internal/pkg/keys"
	"promo/internal/pkg/redis"
	outboxdomain "promo/internal/service/outbox/domain"
	"promo/internal/service/scheduler/application"
	"promo/internal/service/scheduler/domain"
	"promo/internal/service/scheduler/infrastructure"

	"go.opentelemetry.io/otel"
)

// fakeOutbox 只记录 Save，投递不在本测试范围内。
type fakeOutbox struct {
	mu    sync.Mutex
	saved []*outboxdomain.OutboxEvent
}

func (f *fakeOutbox) Save(ctx context.Context, tx *gorm.DB, event *outboxdomain.OutboxEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, event)
	return nil
}

func (f *fakeOutbox) DispatchBatch(ctx context.Context, now time.Time, limit, maxAttempts int,
	handle func(event *outboxdomain.OutboxEvent) (outboxdomain.Disposition, error)) (int, error) {
	return 0, nil
}

func (f *fakeOutbox) savedTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	types := make([]string, len(f.saved))
	for i, ev := range f.saved {
		types[i] = ev.Type
	}
	return types
}

// brokenOpenStore 让状态迁移固定失败，其余操作走真实适配器。
type brokenOpenStore struct {
	*infrastructure.EventRedisAdapter
}

func (s *brokenOpenStore) TryOpen(ctx context.Context, eventID string) (bool, error) {
	return false, errors.New("open transition unavailable")
}

func newScheduler(t *testing.T) (*miniredis.Miniredis, *application.SchedulerService, *fakeOutbox) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	builder := keys.NewBuilder("test")
	store, err := infrastructure.NewEventRedisAdapter(client, builder)
	require.NoError(t, err)

	outbox := &fakeOutbox{}
	svc := application.NewSchedulerService(store, outbox, builder, client, 5*time.Second, otel.Tracer("test"))
	return mr, svc, outbox
}

func TestScheduleEvent(t *testing.T) {
	ctx := context.Background()

	t.Run("registers fuse, status and schedule entry", func(t *testing.T) {
		mr, svc, _ := newScheduler(t)
		require.NoError(t, svc.ScheduleEvent(ctx, "evt-618", 30*time.Second))

		status, err := mr.Get("test:event:status:{evt-618}")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPending, status)

		assert.True(t, mr.Exists("test:event:start:{evt-618}"))
		assert.Equal(t, 30*time.Second, mr.TTL("test:event:start:{evt-618}"))

		members, err := mr.ZMembers("test:event:schedule")
		require.NoError(t, err)
		assert.Equal(t, []string{"evt-618"}, members)
	})

	t.Run("non-positive delay is rejected", func(t *testing.T) {
		_, svc, _ := newScheduler(t)
		assert.Error(t, svc.ScheduleEvent(ctx, "evt-618", 0))
		assert.Error(t, svc.ScheduleEvent(ctx, "evt-618", -time.Second))
	})
}

func TestOpenEvent(t *testing.T) {
	ctx := context.Background()

	t.Run("expiry trigger opens the event once", func(t *testing.T) {
		mr, svc, outbox := newScheduler(t)
		require.NoError(t, svc.ScheduleEvent(ctx, "evt-618", time.Second))

		require.NoError(t, svc.OpenEvent(ctx, "evt-618", domain.TriggerExpiry))

		status, err := mr.Get("test:event:status:{evt-618}")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusOpen, status)
		assert.Equal(t, []string{domain.EventTypeEventOpened}, outbox.savedTypes())

		assert.False(t, mr.Exists("test:event:schedule"), "opened event must leave the schedule index")

		// 重复开启是 no-op，不产生第二条事件
		require.NoError(t, svc.OpenEvent(ctx, "evt-618", domain.TriggerSweep))
		assert.Len(t, outbox.savedTypes(), 1)
	})

	t.Run("failed transition still leaves the schedule index", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client := redis.NewClient(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
		builder := keys.NewBuilder("test")
		store, err := infrastructure.NewEventRedisAdapter(client, builder)
		require.NoError(t, err)

		broken := &brokenOpenStore{EventRedisAdapter: store}
		svc := application.NewSchedulerService(broken, &fakeOutbox{}, builder, client, 5*time.Second, otel.Tracer("test"))

		require.NoError(t, svc.ScheduleEvent(ctx, "evt-618", time.Second))
		require.Error(t, svc.OpenEvent(ctx, "evt-618", domain.TriggerSweep))

		// 坏条目不能一轮轮堵在兜底扫描里
		assert.False(t, mr.Exists("test:event:schedule"))
	})

	t.Run("held lock means another instance is opening, skip silently", func(t *testing.T) {
		mr, svc, outbox := newScheduler(t)
		require.NoError(t, svc.ScheduleEvent(ctx, "evt-618", time.Second))
		mr.Set("test:event:lock:{evt-618}", "someone-else")

		require.NoError(t, svc.OpenEvent(ctx, "evt-618", domain.TriggerExpiry))

		status, err := mr.Get("test:event:status:{evt-618}")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPending, status)
		assert.Empty(t, outbox.savedTypes())
	})
}

func TestRecoverySweep(t *testing.T) {
	ctx := context.Background()

	t.Run("dropped notification is recovered by the sweep", func(t *testing.T) {
		mr, svc, outbox := newScheduler(t)
		require.NoError(t, svc.ScheduleEvent(ctx, "evt-618", time.Second))

		// 模拟引信过期但通知丢失：Key 消失，状态还停在 PENDING
		mr.Del("test:event:start:{evt-618}")

		require.NoError(t, svc.RecoverySweep(ctx, time.Now().Add(time.Minute)))

		status, err := mr.Get("test:event:status:{evt-618}")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusOpen, status)
		assert.Equal(t, []string{domain.EventTypeEventOpened}, outbox.savedTypes())

		assert.False(t, mr.Exists("test:event:schedule"))
	})

	t.Run("not yet due events are left alone", func(t *testing.T) {
		mr, svc, outbox := newScheduler(t)
		require.NoError(t, svc.ScheduleEvent(ctx, "evt-618", time.Hour))

		require.NoError(t, svc.RecoverySweep(ctx, time.Now()))

		status, err := mr.Get("test:event:status:{evt-618}")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPending, status)
		assert.Empty(t, outbox.savedTypes())
	})
}
