// internal/service/inventory/infrastructure/gorm_model.go
package infrastructure

import "gorm.io/gorm"

// ProductModel 对应数据库中的 product 表。StockQuantity 是持久化的
// 库存事实来源，缓存计数从这里预热；Version 是乐观锁版本号。
type ProductModel struct {
	gorm.Model
	Code          string `gorm:"type:varchar(64);uniqueIndex"`
	Name          string
	StockQuantity int64 `gorm:"not null;default:0"`
	Version       int64 `gorm:"not null;default:0"`
}

func (ProductModel) TableName() string { return "product" }
