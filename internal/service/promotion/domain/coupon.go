// internal/service/promotion/domain/coupon.go
package domain

import "time"

// UserCouponStatus 用户券的生命周期状态。
type UserCouponStatus string

const (
	StatusUnused  UserCouponStatus = "UNUSED"
	StatusUsed    UserCouponStatus = "USED"
	StatusExpired UserCouponStatus = "EXPIRED"
)

// DefaultValidityDays 模板既没有配截止时间也没有配有效天数时的
// 兜底有效期。
const DefaultValidityDays = 30

// CouponTemplate 优惠券模板：一次发券活动的定义。
type CouponTemplate struct {
	ID            int64
	TemplateCode  string
	Name          string
	TotalQuantity int64
	ValidTo       time.Time // 零值表示未配置，退回 ValidDays
	ValidDays     int
	// EligibilityRule 可选的 CEL 表达式，对领取事实求值，空串表示
	// 人人可领
	EligibilityRule string
	Status          int
}

// EffectiveExpiry 计算本次发放的实际过期时间。now 由调用方一次性
// 读取传入，保证过期时间与 TTL 基于同一时刻。
func (t *CouponTemplate) EffectiveExpiry(now time.Time) time.Time {
	if !t.ValidTo.IsZero() {
		return t.ValidTo
	}
	days := t.ValidDays
	if days <= 0 {
		days = DefaultValidityDays
	}
	return now.AddDate(0, 0, days)
}

// UserCoupon 用户持有的一张券。
type UserCoupon struct {
	ID         int64
	CouponCode string
	UserID     string
	Status     UserCouponStatus
	IssuedAt   time.Time
	ValidTo    time.Time
}

// Fact 是资格规则的求值事实。
type Fact struct {
	UserID string `json:"userId"`
	IsVip  bool   `json:"isVip"`
}
