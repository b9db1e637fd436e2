// internal/service/inventory/interfaces/http_handler.go
package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"promo/internal/pkg/errkind"
	"promo/internal/service/inventory/application"
)

// InventoryHandler 封装了 inventory 服务的 HTTP 处理器
type InventoryHandler struct {
	service *application.ReservationService
	holdTTL time.Duration
}

func NewInventoryHandler(service *application.ReservationService, holdTTL time.Duration) *InventoryHandler {
	return &InventoryHandler{service: service, holdTTL: holdTTL}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *InventoryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/reserve_stock", h.handleReserve)
	mux.HandleFunc("/confirm_stock", h.handleConfirm)
	mux.HandleFunc("/cancel_stock", h.handleCancel)
}

type reservationRequest struct {
	Sku      string `json:"sku"`
	OrderID  string `json:"orderId"`
	Quantity int64  `json:"quantity"`
}

func (h *InventoryHandler) handleReserve(w http.ResponseWriter, r *http.Request) {
	req, ctx, ok := h.decode(w, r)
	if !ok {
		return
	}
	if err := h.service.Reserve(ctx, req.Sku, req.OrderID, req.Quantity, h.holdTTL); err != nil {
		http.Error(w, err.Error(), statusFromKind(errkind.Of(err)))
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *InventoryHandler) handleConfirm(w http.ResponseWriter, r *http.Request) {
	req, ctx, ok := h.decode(w, r)
	if !ok {
		return
	}
	if err := h.service.Confirm(ctx, req.Sku, req.OrderID); err != nil {
		http.Error(w, err.Error(), statusFromKind(errkind.Of(err)))
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *InventoryHandler) handleCancel(w http.ResponseWriter, r *http.Request) {
	req, ctx, ok := h.decode(w, r)
	if !ok {
		return
	}
	if err := h.service.Cancel(ctx, req.Sku, req.OrderID); err != nil {
		http.Error(w, err.Error(), statusFromKind(errkind.Of(err)))
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *InventoryHandler) decode(w http.ResponseWriter, r *http.Request) (reservationRequest, context.Context, bool) {
	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	var req reservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return req, ctx, false
	}
	return req, ctx, true
}

// statusFromKind 按错误类别映射 HTTP 状态码
func statusFromKind(kind errkind.Kind) int {
	switch kind {
	case errkind.KindNotFound:
		return http.StatusNotFound
	case errkind.KindConflict:
		return http.StatusConflict
	case errkind.KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
