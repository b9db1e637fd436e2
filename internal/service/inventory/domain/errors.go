// internal/service/inventory/domain/errors.go
package domain

import "errors"

var (
	// ErrStockNotFound 可售计数在缓存中不存在（未预热或 sku 不存在）。
	ErrStockNotFound = errors.New("product stock not found")
	// ErrInsufficientStock 剩余可售量不足以覆盖本次预占。
	ErrInsufficientStock = errors.New("product sold out")
	// ErrHoldExpired 确认时预占记录已不存在（已过期或已被结算）。
	ErrHoldExpired = errors.New("hold missing or expired")
	// ErrWriteConflict 预占记录创建时撞上并发写入，已回滚。
	ErrWriteConflict = errors.New("hold write conflict")
	// ErrIntegrityViolation reserved/available 计数对不上账。正常流程
	// 不可能走到这里，出现即是 bug 信号。
	ErrIntegrityViolation = errors.New("stock counter integrity violation")
	// ErrOptimisticLock 关系库的条件更新没有命中任何行（版本或库存
	// 条件失败），属于可重试类别。
	ErrOptimisticLock = errors.New("optimistic lock failure on stock row")
)
