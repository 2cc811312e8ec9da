package shipment

import "time"

// Shipment 物流单聚合根
//
// 教学要点：
// 1. 物流单是独立的聚合根（与Order解耦），和payment-service的设计思路一致
// 2. ShipmentNo是物流系统内部单号，OrderID是关联订单的外键
type Shipment struct {
	ID         uint           `gorm:"primaryKey;comment:物流单ID"`
	ShipmentNo string         `gorm:"uniqueIndex;size:32;not null;comment:物流单号"`
	OrderID    uint           `gorm:"uniqueIndex;not null;comment:订单ID"`
	Status     ShipmentStatus `gorm:"type:tinyint;not null;default:1;index;comment:物流状态"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ShipmentStatus 物流单状态枚举
type ShipmentStatus int

const (
	ShipmentStatusCreated   ShipmentStatus = 1 // 已创建
	ShipmentStatusCancelled ShipmentStatus = 2 // 已取消
)

func (s ShipmentStatus) String() string {
	switch s {
	case ShipmentStatusCreated:
		return "已创建"
	case ShipmentStatusCancelled:
		return "已取消"
	default:
		return "未知状态"
	}
}

// TableName 指定表名
func (Shipment) TableName() string {
	return "shipments"
}

// CanCancel 判断是否可以取消
func (s *Shipment) CanCancel() bool {
	return s.Status == ShipmentStatusCreated
}
