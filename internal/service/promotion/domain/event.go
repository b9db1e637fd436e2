// internal/service/promotion/domain/event.go
package domain

import "time"

// EventTypeCouponIssued 发券成功事件。热路径只动缓存计数，用户券
// 行的持久化由这个事件的消费者异步完成。
const EventTypeCouponIssued = "promotion.coupon.issued"

// CouponIssued 描述一次成功的发券。
type CouponIssued struct {
	EventID    string    `json:"eventId"`
	CouponCode string    `json:"couponCode"`
	UserID     string    `json:"userId"`
	IssuedAt   time.Time `json:"issuedAt"`
	ValidTo    time.Time `json:"validTo"`
}
