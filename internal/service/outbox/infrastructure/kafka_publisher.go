// internal/service/outbox/infrastructure/kafka_publisher.go
package infrastructure

import (
	"context"

	"github.com/segmentio/kafka-go"

	"promo/internal/pkg/mq"
)

// KafkaEventPublisher 把一类（或几类）事件发布到固定的 Kafka 主题。
// 同步发送，失败向上抛给 relay worker 按退避重试。
type KafkaEventPublisher struct {
	writer     *kafka.Writer
	eventTypes map[string]struct{}
}

func NewKafkaEventPublisher(writer *kafka.Writer, eventTypes ...string) *KafkaEventPublisher {
	types := make(map[string]struct{}, len(eventTypes))
	for _, t := range eventTypes {
		types[t] = struct{}{}
	}
	return &KafkaEventPublisher{writer: writer, eventTypes: types}
}

func (p *KafkaEventPublisher) Supports(eventType string) bool {
	_, ok := p.eventTypes[eventType]
	return ok
}

func (p *KafkaEventPublisher) Publish(ctx context.Context, payload []byte) error {
	return mq.ProduceMessage(ctx, p.writer, nil, payload)
}

// Close 关闭底层 writer。
func (p *KafkaEventPublisher) Close() error {
	return p.writer.Close()
}
