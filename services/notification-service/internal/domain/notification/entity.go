package notification

import "time"

// Record是已发送通知的审计记录，和inventory/payment/shipping三个参与方的
// 领域表是同一种思路：inbox.Entry已经保证了事件级别的去重，Record额外记的
// 是"对这个订单做过什么通知"，运营排查时不用去翻inbox原始JSON
type Record struct {
	ID        uint   `gorm:"primaryKey;comment:通知记录ID"`
	OrderID   uint   `gorm:"index;not null;comment:订单ID"`
	OrderNo   string `gorm:"size:32;not null;comment:订单号"`
	Kind      Kind   `gorm:"type:tinyint;not null;comment:通知类型"`
	SentAt    time.Time
	CreatedAt time.Time
}

// Kind是通知类型枚举，对应saga终态：成功通知顾客下单成功，失败通知顾客订单取消
type Kind int

const (
	KindOrderConfirmed Kind = 1
	KindOrderCancelled Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindOrderConfirmed:
		return "下单成功通知"
	case KindOrderCancelled:
		return "订单取消通知"
	default:
		return "未知通知类型"
	}
}

func (Record) TableName() string {
	return "notification_records"
}
