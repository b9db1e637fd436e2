// internal/service/promotion/infrastructure/gorm_model.go
package infrastructure

import (
	"time"

	"gorm.io/gorm"
)

// CouponTemplateModel 券模板表
type CouponTemplateModel struct {
	gorm.Model
	TemplateCode    string     `gorm:"type:varchar(64);uniqueIndex;not null;comment:券码"`
	Name            string     `gorm:"type:varchar(128);not null;comment:券名称"`
	TotalQuantity   int64      `gorm:"not null;default:0;comment:总发放量"`
	ValidTo         *time.Time `gorm:"comment:绝对过期时间"`
	ValidDays       int        `gorm:"not null;default:0;comment:领取后有效天数"`
	EligibilityRule string     `gorm:"type:varchar(512);comment:CEL 领取资格表达式"`
	Status          int        `gorm:"not null;default:1;comment:模板状态 1-生效 0-下线"`
}

func (CouponTemplateModel) TableName() string {
	return "coupon_template"
}

// UserCouponModel 用户持券表，(coupon_code, user_id) 唯一保证同券一人一张
type UserCouponModel struct {
	gorm.Model
	CouponCode string    `gorm:"type:varchar(64);not null;uniqueIndex:uk_coupon_user;comment:券码"`
	UserID     string    `gorm:"type:varchar(64);not null;uniqueIndex:uk_coupon_user;comment:用户ID"`
	Status     string    `gorm:"type:varchar(16);not null;default:'UNUSED';comment:券状态"`
	IssuedAt   time.Time `gorm:"not null;comment:发放时间"`
	ValidTo    time.Time `gorm:"not null;index;comment:过期时间"`
}

func (UserCouponModel) TableName() string {
	return "user_coupon"
}
