package mysql

import (
	"context"
	"errors"
	"fmt"

	"github.com/xiebiao/saga-commerce/services/shipping-service/internal/domain/shipment"
	"gorm.io/gorm"
)

type shipmentRepository struct {
	db *gorm.DB
}

func NewShipmentRepository(db *gorm.DB) shipment.Repository {
	return &shipmentRepository{db: db}
}

func (r *shipmentRepository) Create(ctx context.Context, s *shipment.Shipment) error {
	if err := r.db.WithContext(ctx).Create(s).Error; err != nil {
		return fmt.Errorf("创建物流单失败: %w", err)
	}
	return nil
}

func (r *shipmentRepository) FindByOrderID(ctx context.Context, orderID uint) (*shipment.Shipment, error) {
	var s shipment.Shipment
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shipment.ErrShipmentNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *shipmentRepository) Update(ctx context.Context, s *shipment.Shipment) error {
	result := r.db.WithContext(ctx).Save(s)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shipment.ErrShipmentNotFound
	}
	return nil
}
