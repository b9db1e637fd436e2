// cmd/inventory-service/main.go
package main

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"promo/internal/pkg/bootstrap"
	"promo/internal/pkg/keys"
	"promo/internal/pkg/mq"
	"promo/internal/pkg/redis"
	invapp "promo/internal/service/inventory/application"
	invdomain "promo/internal/service/inventory/domain"
	"promo/internal/service/inventory/infrastructure"
	"promo/internal/service/inventory/infrastructure/adapter"
	"promo/internal/service/inventory/interfaces"
	"promo/internal/service/outbox/application"
	outboxdomain "promo/internal/service/outbox/domain"
	outboxinfra "promo/internal/service/outbox/infrastructure"
)

const (
	serviceName         = "inventory-service"
	servicePort         = 8082
	stockConfirmedTopic = invdomain.EventTypeStockConfirmed
	holdReleasedTopic   = invdomain.EventTypeHoldReleased
	consumerGroup       = "inventory-service-group"
	dltTopic            = stockConfirmedTopic + ".dlt"
)

var retryLevels = []mq.RetryLevel{
	{Topic: stockConfirmedTopic + ".retry.1s", Delay: "1s"},
	{Topic: stockConfirmedTopic + ".retry.2s", Delay: "2s"},
	{Topic: stockConfirmedTopic + ".retry.4s", Delay: "4s"},
}

var retryDelays = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}

// main 是应用的组装根：创建并组装所有依赖项，然后交给 bootstrap。
func main() {
	ctx := context.Background()
	cfg := bootstrap.GetCurrentConfig()

	db, err := gorm.Open(mysql.Open(cfg.Infra.Mysql.DSN), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect mysql: %v", err)
	}
	if err := db.AutoMigrate(
		&infrastructure.ProductModel{},
		&outboxdomain.OutboxEvent{},
	); err != nil {
		log.Fatalf("failed to migrate schema: %v", err)
	}

	redisClient, err := redis.Connect(ctx, cfg.Infra.Redis.Addr, cfg.Infra.Redis.Password, cfg.Infra.Redis.DB)
	if err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer redisClient.Close()

	keyBuilder := keys.NewBuilder(cfg.Env)
	stockStore, err := adapter.NewStockRedisAdapter(redisClient, keyBuilder)
	if err != nil {
		log.Fatalf("failed to create stock redis adapter: %v", err)
	}

	tracer := otel.Tracer(serviceName)
	outboxStore := outboxinfra.NewGormOutboxStore(db)
	reservationService := invapp.NewReservationService(stockStore, outboxStore, tracer)
	productRepo := infrastructure.NewGormProductRepository(db)

	// outbox relay：扣减确认和预占释放两类事件各自一个 writer
	confirmedWriter := mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers, stockConfirmedTopic)
	defer confirmedWriter.Close()
	releasedWriter := mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers, holdReleasedTopic)
	defer releasedWriter.Close()
	registry := application.NewRegistry(
		outboxinfra.NewKafkaEventPublisher(confirmedWriter, invdomain.EventTypeStockConfirmed),
		outboxinfra.NewKafkaEventPublisher(releasedWriter, invdomain.EventTypeHoldReleased),
	)
	relay := application.NewRelay(outboxStore, registry, cfg.Outbox.PollInterval, cfg.Outbox.BatchSize, cfg.Outbox.MaxAttempts)

	// 消费流水线：持久化扣减（乐观锁）+ 重试 + 死信记录
	failureHandler := mq.NewFailureHandler(cfg.Infra.Kafka.Brokers, retryLevels, dltTopic)
	defer failureHandler.Close()
	confirmedHandler := interfaces.NewStockConfirmedHandler(productRepo, tracer)

	components := []bootstrap.Component{
		relay,
		invapp.NewHoldSweeper(reservationService, cfg.Inventory.SweepInterval),
		mq.NewConsumerAdapter(
			mq.NewKafkaReader(cfg.Infra.Kafka.Brokers, stockConfirmedTopic, consumerGroup),
			confirmedHandler.Handle, failureHandler),
	}
	for i, level := range retryLevels {
		retryConsumer := mq.NewConsumerAdapter(
			mq.NewKafkaReader(cfg.Infra.Kafka.Brokers, level.Topic, consumerGroup+"-retry"),
			confirmedHandler.Handle, failureHandler)
		retryConsumer.SetDelay(retryDelays[i])
		components = append(components, retryConsumer)
	}
	components = append(components, mq.NewConsumerAdapter(
		mq.NewKafkaReader(cfg.Infra.Kafka.Brokers, dltTopic, consumerGroup+"-dlt"),
		interfaces.NewDeadLetterHandler(), nil))

	httpHandler := interfaces.NewInventoryHandler(reservationService, cfg.Inventory.HoldTTL)
	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        servicePort,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			httpHandler.RegisterRoutes(appCtx.Mux)
		},
		Components: components,
	})
}
