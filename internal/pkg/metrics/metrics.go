// internal/pkg/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 核心链路指标。label 取值保持低基数：result/kind 是有限枚举，
// topic 是配置里声明过的主题。
var (
	ReservationOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "promo",
		Subsystem: "inventory",
		Name:      "reservation_ops_total",
		Help:      "Stock reservation operations by op and result.",
	}, []string{"op", "result"})

	CouponIssueOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "promo",
		Subsystem: "promotion",
		Name:      "coupon_issue_total",
		Help:      "Coupon issuance attempts by result.",
	}, []string{"result"})

	OutboxDispatch = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "promo",
		Subsystem: "outbox",
		Name:      "dispatch_total",
		Help:      "Outbox dispatch attempts by result (sent/failed/no_publisher/exhausted).",
	}, []string{"result"})

	ConsumerRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "promo",
		Subsystem: "consumer",
		Name:      "retries_total",
		Help:      "Messages routed to a broker retry topic.",
	}, []string{"topic"})

	DeadLetters = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "promo",
		Subsystem: "consumer",
		Name:      "dead_letters_total",
		Help:      "Messages routed to the dead letter topic by error kind.",
	}, []string{"kind"})

	ExpiredHoldsReaped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "promo",
		Subsystem: "inventory",
		Name:      "expired_holds_reaped_total",
		Help:      "Expired holds whose reserved count was reclaimed by the sweeper.",
	})

	EventsOpened = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "promo",
		Subsystem: "scheduler",
		Name:      "events_opened_total",
		Help:      "Scheduled events transitioned to OPEN, by trigger (listener/recovery).",
	}, []string{"trigger"})
)
