// internal/service/promotion/infrastructure/mapper.go
package infrastructure

import (
	"time"

	"promo/internal/service/promotion/domain"
)

func toTemplateDomain(m *CouponTemplateModel) *domain.CouponTemplate {
	var validTo time.Time
	if m.ValidTo != nil {
		validTo = *m.ValidTo
	}
	return &domain.CouponTemplate{
		ID:              int64(m.ID),
		TemplateCode:    m.TemplateCode,
		Name:            m.Name,
		TotalQuantity:   m.TotalQuantity,
		ValidTo:         validTo,
		ValidDays:       m.ValidDays,
		EligibilityRule: m.EligibilityRule,
		Status:          m.Status,
	}
}

func toUserCouponModel(c *domain.UserCoupon) *UserCouponModel {
	return &UserCouponModel{
		CouponCode: c.CouponCode,
		UserID:     c.UserID,
		Status:     string(c.Status),
		IssuedAt:   c.IssuedAt,
		ValidTo:    c.ValidTo,
	}
}
