// cmd/event-scheduler/main.go
package main

import (
	"context"
	"log"

	"go.opentelemetry.io/otel"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"promo/internal/pkg/bootstrap"
	"promo/internal/pkg/keys"
	"promo/internal/pkg/mq"
	"promo/internal/pkg/redis"
	"promo/internal/service/outbox/application"
	outboxdomain "promo/internal/service/outbox/domain"
	outboxinfra "promo/internal/service/outbox/infrastructure"
	schedapp "promo/internal/service/scheduler/application"
	scheddomain "promo/internal/service/scheduler/domain"
	"promo/internal/service/scheduler/infrastructure"
	"promo/internal/service/scheduler/interfaces"
)

const (
	serviceName      = "event-scheduler"
	servicePort      = 8083
	eventOpenedTopic = scheddomain.EventTypeEventOpened
)

// main 是应用的组装根：创建并组装所有依赖项，然后交给 bootstrap。
func main() {
	ctx := context.Background()
	cfg := bootstrap.GetCurrentConfig()

	db, err := gorm.Open(mysql.Open(cfg.Infra.Mysql.DSN), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect mysql: %v", err)
	}
	if err := db.AutoMigrate(&outboxdomain.OutboxEvent{}); err != nil {
		log.Fatalf("failed to migrate schema: %v", err)
	}

	redisClient, err := redis.Connect(ctx, cfg.Infra.Redis.Addr, cfg.Infra.Redis.Password, cfg.Infra.Redis.DB)
	if err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer redisClient.Close()

	keyBuilder := keys.NewBuilder(cfg.Env)
	scheduleStore, err := infrastructure.NewEventRedisAdapter(redisClient, keyBuilder)
	if err != nil {
		log.Fatalf("failed to create scheduler redis adapter: %v", err)
	}

	tracer := otel.Tracer(serviceName)
	outboxStore := outboxinfra.NewGormOutboxStore(db)
	schedulerService := schedapp.NewSchedulerService(
		scheduleStore, outboxStore, keyBuilder, redisClient, cfg.Scheduler.LockTTL, tracer)

	openedWriter := mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers, eventOpenedTopic)
	defer openedWriter.Close()
	registry := application.NewRegistry(
		outboxinfra.NewKafkaEventPublisher(openedWriter, scheddomain.EventTypeEventOpened),
	)
	relay := application.NewRelay(outboxStore, registry, cfg.Outbox.PollInterval, cfg.Outbox.BatchSize, cfg.Outbox.MaxAttempts)

	httpHandler := interfaces.NewSchedulerHandler(schedulerService)
	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        servicePort,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			httpHandler.RegisterRoutes(appCtx.Mux)
		},
		Components: []bootstrap.Component{
			relay,
			infrastructure.NewExpiryListener(redisClient, keyBuilder, schedulerService),
			schedapp.NewRecoverySweeper(schedulerService, cfg.Scheduler.RecoveryInterval),
		},
	})
}
