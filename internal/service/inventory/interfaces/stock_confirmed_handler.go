// internal/service/inventory/interfaces/stock_confirmed_handler.go
package interfaces

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"promo/internal/pkg/errkind"
	"promo/internal/pkg/logger"
	"promo/internal/pkg/mq"
	"promo/internal/service/inventory/domain"
	"promo/internal/service/inventory/infrastructure"
)

// StockConfirmedHandler 消费预占确认事件，把扣减落到关系库。
// 条件更新带版本号，乐观锁失败属于瞬时错误，由本地重试兜住；
// 本地重试耗尽后交给 broker 层的重试主题。
type StockConfirmedHandler struct {
	products *infrastructure.GormProductRepository
	tracer   trace.Tracer
}

func NewStockConfirmedHandler(products *infrastructure.GormProductRepository, tracer trace.Tracer) *StockConfirmedHandler {
	return &StockConfirmedHandler{products: products, tracer: tracer}
}

// Handle 实现 mq.MessageHandler。
func (h *StockConfirmedHandler) Handle(ctx context.Context, msg kafka.Message) error {
	var event domain.StockConfirmed
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		// 坏消息重试不会变好，直接判为业务性失败进死信
		return errkind.Wrap(errkind.KindConflict, err)
	}

	ctx, span := h.tracer.Start(ctx, "inventory.ApplyStockConfirmed", trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("sku", event.Sku),
			attribute.String("order.id", event.OrderID),
			attribute.Int64("qty", event.Quantity),
		))
	defer span.End()

	return mq.WithLocalRetry(ctx, func(ctx context.Context) error {
		// 每次尝试都重读版本号，乐观锁失败后带新版本重来
		rows, err := h.products.FindProductsByCodes(ctx, []string{event.Sku})
		if err != nil {
			return errkind.Wrap(errkind.KindTransient, err)
		}
		if len(rows) == 0 {
			return errkind.New(errkind.KindNotFound, "product %s not found for durable decrement", event.Sku)
		}

		_, err = h.products.BulkConditionalUpdateStock(ctx, []infrastructure.StockUpdate{{
			ProductID: rows[0].ID,
			Quantity:  event.Quantity,
			Version:   rows[0].Version,
		}})
		if err != nil {
			return err
		}
		logger.Ctx(ctx).Info().
			Str("sku", event.Sku).Str("order_id", event.OrderID).Int64("qty", event.Quantity).
			Msg("Durable stock decrement applied")
		return nil
	})
}
