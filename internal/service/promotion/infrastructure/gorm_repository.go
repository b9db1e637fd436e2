// internal/service/promotion/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"promo/internal/service/promotion/domain"
)

// GormCouponRepository 是 domain.CouponRepository 的 GORM 实现。
type GormCouponRepository struct {
	db *gorm.DB
}

func NewGormCouponRepository(db *gorm.DB) *GormCouponRepository {
	return &GormCouponRepository{db: db}
}

func (r *GormCouponRepository) FindTemplateByCode(ctx context.Context, code string) (*domain.CouponTemplate, error) {
	var model CouponTemplateModel
	err := r.db.WithContext(ctx).Where("template_code = ?", code).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrCouponNotFound
		}
		return nil, err
	}
	return toTemplateDomain(&model), nil
}

func (r *GormCouponRepository) CountIssued(ctx context.Context, couponCode string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&UserCouponModel{}).
		Where("coupon_code = ?", couponCode).
		Count(&count).Error
	return count, err
}

// SaveUserCoupon 依赖 uk_coupon_user 唯一键做幂等：消息重投时的
// 重复插入静默跳过。
func (r *GormCouponRepository) SaveUserCoupon(ctx context.Context, coupon *domain.UserCoupon) error {
	model := toUserCouponModel(coupon)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(model).Error
}
