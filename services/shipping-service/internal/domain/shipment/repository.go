package shipment

import "context"

// Repository 物流单仓储接口
type Repository interface {
	Create(ctx context.Context, s *Shipment) error
	FindByOrderID(ctx context.Context, orderID uint) (*Shipment, error)
	Update(ctx context.Context, s *Shipment) error
}
