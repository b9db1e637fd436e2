// internal/service/promotion/domain/errors.go
package domain

import "errors"

var (
	// ErrCouponNotFound 券模板不存在。
	ErrCouponNotFound = errors.New("coupon not found")
	// ErrAlreadyIssued 该用户已领取过这张券。
	ErrAlreadyIssued = errors.New("coupon already issued to user")
	// ErrCouponSoldOut 券已发完。
	ErrCouponSoldOut = errors.New("coupon sold out")
	// ErrCouponExpired 券的有效期已过，发放前置检查直接拒绝。
	ErrCouponExpired = errors.New("coupon already expired")
	// ErrNotEligible 资格规则求值为否。
	ErrNotEligible = errors.New("user not eligible for coupon")
)
