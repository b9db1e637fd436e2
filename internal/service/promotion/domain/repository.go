// internal/service/promotion/domain/repository.go
package domain

import "context"

// CouponRepository 定义优惠券数据的持久化接口，
// 这是领域层与基础设施层之间的"插座"。
type CouponRepository interface {
	// FindTemplateByCode 查券模板，不存在时返回 ErrCouponNotFound。
	FindTemplateByCode(ctx context.Context, code string) (*CouponTemplate, error)

	// CountIssued 统计某张券已发放的数量，缓存计数缺失时用它做
	// 惰性预热。
	CountIssued(ctx context.Context, couponCode string) (int64, error)

	// SaveUserCoupon 落一条用户券记录。对同一 (couponCode, userID)
	// 幂等：重复插入按成功处理。
	SaveUserCoupon(ctx context.Context, coupon *UserCoupon) error
}

// RuleEngine 资格规则求值的出站端口。
type RuleEngine interface {
	Evaluate(ruleDefinition string, fact Fact) (bool, error)
}
