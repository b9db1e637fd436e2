// internal/service/promotion/interfaces/http_handler.go
package interfaces

import (
	"encoding/json"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"promo/internal/pkg/errkind"
	"promo/internal/service/promotion/application"
)

// PromotionHandler 封装了 promotion 服务的 HTTP 处理器
type PromotionHandler struct {
	service *application.CouponService
}

func NewPromotionHandler(service *application.CouponService) *PromotionHandler {
	return &PromotionHandler{service: service}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *PromotionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/issue_coupon", h.handleIssueCoupon)
}

type issueCouponRequest struct {
	CouponCode string `json:"couponCode"`
	UserID     string `json:"userId"`
	IsVip      bool   `json:"isVip"`
}

func (h *PromotionHandler) handleIssueCoupon(w http.ResponseWriter, r *http.Request) {
	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	var req issueCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.service.Issue(ctx, req.CouponCode, req.UserID, req.IsVip)
	if err != nil {
		http.Error(w, err.Error(), statusFromKind(errkind.Of(err)))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
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
