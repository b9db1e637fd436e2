// cmd/promotion-service/main.go
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
	"promo/internal/service/outbox/application"
	outboxdomain "promo/internal/service/outbox/domain"
	outboxinfra "promo/internal/service/outbox/infrastructure"
	promoapp "promo/internal/service/promotion/application"
	promodomain "promo/internal/service/promotion/domain"
	"promo/internal/service/promotion/infrastructure"
	"promo/internal/service/promotion/infrastructure/rule"
	"promo/internal/service/promotion/interfaces"
)

const (
	serviceName       = "promotion-service"
	servicePort       = 8081
	couponIssuedTopic = promodomain.EventTypeCouponIssued
	consumerGroup     = "promotion-service-group"
	dltTopic          = couponIssuedTopic + ".dlt"
)

// 三级重试主题，延迟由各自消费者按消息时间戳实现
var retryLevels = []mq.RetryLevel{
	{Topic: couponIssuedTopic + ".retry.1s", Delay: "1s"},
	{Topic: couponIssuedTopic + ".retry.2s", Delay: "2s"},
	{Topic: couponIssuedTopic + ".retry.4s", Delay: "4s"},
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
		&infrastructure.CouponTemplateModel{},
		&infrastructure.UserCouponModel{},
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
	couponCache, err := infrastructure.NewCouponRedisAdapter(redisClient, keyBuilder)
	if err != nil {
		log.Fatalf("failed to create coupon redis adapter: %v", err)
	}
	ruleEngine, err := rule.NewCELRuleEngineAdapter()
	if err != nil {
		log.Fatalf("failed to create rule engine: %v", err)
	}

	tracer := otel.Tracer(serviceName)
	couponRepo := infrastructure.NewGormCouponRepository(db)
	outboxStore := outboxinfra.NewGormOutboxStore(db)
	couponService := promoapp.NewCouponService(couponRepo, couponCache, ruleEngine, outboxStore, tracer)

	// outbox relay：把 coupon.issued 行搬运到 Kafka
	issuedWriter := mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers, couponIssuedTopic)
	defer issuedWriter.Close()
	registry := application.NewRegistry(
		outboxinfra.NewKafkaEventPublisher(issuedWriter, promodomain.EventTypeCouponIssued),
	)
	relay := application.NewRelay(outboxStore, registry, cfg.Outbox.PollInterval, cfg.Outbox.BatchSize, cfg.Outbox.MaxAttempts)

	// 消费流水线：主消费者 + 三级重试消费者 + 死信补偿
	failureHandler := mq.NewFailureHandler(cfg.Infra.Kafka.Brokers, retryLevels, dltTopic)
	defer failureHandler.Close()
	issuedHandler := interfaces.NewCouponIssuedHandler(couponRepo, tracer)

	components := []bootstrap.Component{
		relay,
		mq.NewConsumerAdapter(
			mq.NewKafkaReader(cfg.Infra.Kafka.Brokers, couponIssuedTopic, consumerGroup),
			issuedHandler.Handle, failureHandler),
	}
	for i, level := range retryLevels {
		retryConsumer := mq.NewConsumerAdapter(
			mq.NewKafkaReader(cfg.Infra.Kafka.Brokers, level.Topic, consumerGroup+"-retry"),
			issuedHandler.Handle, failureHandler)
		retryConsumer.SetDelay(retryDelays[i])
		components = append(components, retryConsumer)
	}
	components = append(components, interfaces.NewDltConsumerAdapter(
		mq.NewKafkaReader(cfg.Infra.Kafka.Brokers, dltTopic, consumerGroup+"-dlt"),
		couponService, couponIssuedTopic))

	httpHandler := interfaces.NewPromotionHandler(couponService)
	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        servicePort,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			httpHandler.RegisterRoutes(appCtx.Mux)
		},
		Components: components,
	})
}
