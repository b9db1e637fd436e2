// internal/service/scheduler/interfaces/http_handler.go
package interfaces

import (
	"encoding/json"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"promo/internal/pkg/errkind"
	"promo/internal/service/scheduler/application"
)

// SchedulerHandler 封装了 scheduler 服务的 HTTP 处理器
type SchedulerHandler struct {
	service *application.SchedulerService
}

func NewSchedulerHandler(service *application.SchedulerService) *SchedulerHandler {
	return &SchedulerHandler{service: service}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *SchedulerHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/schedule_event", h.handleScheduleEvent)
}

type scheduleEventRequest struct {
	EventID      string `json:"eventId"`
	DelaySeconds int64  `json:"delaySeconds"`
}

func (h *SchedulerHandler) handleScheduleEvent(w http.ResponseWriter, r *http.Request) {
	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	var req scheduleEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	delay := time.Duration(req.DelaySeconds) * time.Second
	if err := h.service.ScheduleEvent(ctx, req.EventID, delay); err != nil {
		status := http.StatusInternalServerError
		switch errkind.Of(err) {
		case errkind.KindConflict:
			status = http.StatusBadRequest
		case errkind.KindTransient:
			status = http.StatusServiceUnavailable
		}
		http.Error(w, err.Error(), status)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
