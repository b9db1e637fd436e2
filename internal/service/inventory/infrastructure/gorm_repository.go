// internal/service/inventory/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"

	"gorm.io/gorm"

	"promo/internal/pkg/errkind"
	"promo/internal/service/inventory/domain"
)

// StockUpdate 描述一条带乐观锁条件的持久化扣减。
type StockUpdate struct {
	ProductID uint
	Quantity  int64
	Version   int64
}

// GormProductRepository 是商品库存的 GORM 仓储。
type GormProductRepository struct {
	db *gorm.DB
}

func NewGormProductRepository(db *gorm.DB) *GormProductRepository {
	return &GormProductRepository{db: db}
}

// FindProductsByCodes 按 sku 批量查询商品行。
func (r *GormProductRepository) FindProductsByCodes(ctx context.Context, codes []string) ([]*ProductModel, error) {
	var models []*ProductModel
	if err := r.db.WithContext(ctx).Where("code IN ?", codes).Find(&models).Error; err != nil {
		return nil, err
	}
	return models, nil
}

// BulkConditionalUpdateStock 在一个事务里对每条更新执行条件扣减：
//
//	UPDATE product SET stock_quantity = stock_quantity - ?, version = version + 1
//	WHERE id = ? AND version = ? AND stock_quantity >= ?
//
// 任意一条没有命中（版本被人改了、或库存不够）即 fail closed：整个
// 事务回滚并返回乐观锁错误，这是消费管道里的可重试类别。
func (r *GormProductRepository) BulkConditionalUpdateStock(ctx context.Context, updates []StockUpdate) (int64, error) {
	var affected int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, u := range updates {
			result := tx.Model(&ProductModel{}).
				Where("id = ? AND version = ? AND stock_quantity >= ?", u.ProductID, u.Version, u.Quantity).
				Updates(map[string]interface{}{
					"stock_quantity": gorm.Expr("stock_quantity - ?", u.Quantity),
					"version":        gorm.Expr("version + 1"),
				})
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return errkind.Wrap(errkind.KindTransient, domain.ErrOptimisticLock)
			}
			affected += result.RowsAffected
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return affected, nil
}
