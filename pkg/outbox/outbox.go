// Package outbox 实现事务性发件箱（Transactional Outbox）
//
// 业务写入和事件入箱必须在同一个数据库事务里提交，这样"状态变更"和"事件存在"
// 要么一起成功要么一起失败，不会出现"订单建好了但事件没发"或者反过来的情况。
// 一个独立的Relay worker轮询表里待发布的行，把它们真正发到transport上，
// 成功后标记已发布，失败则按最大重试次数退避，超限后转入死信队列。
package outbox

import (
	"time"

	"github.com/xiebiao/saga-commerce/pkg/envelope"
)

// Status 发件箱行的生命周期状态
type Status string

const (
	StatusPending   Status = "pending"
	StatusPublished Status = "published"
	StatusFailed    Status = "failed" // 转入死信队列之前的终态标记
)

// Message 对应outbox_messages表的一行，即一条尚未确认送达transport的事件
type Message struct {
	ID            uint64 `gorm:"primaryKey;autoIncrement"`
	EventID       string `gorm:"uniqueIndex;size:64"`
	EventType     string `gorm:"size:128;index"`
	CorrelationID string `gorm:"size:64;index"`
	PartitionKey  string `gorm:"size:128"`
	Topic         string `gorm:"size:128;index"`
	Payload       []byte `gorm:"type:json"`
	Status        Status `gorm:"size:16;index:idx_outbox_status_created"`
	Attempts      int
	MaxRetries    int
	LastError     string `gorm:"size:512"`
	LeaseOwner    string `gorm:"size:64"`
	LeaseExpires  time.Time
	CreatedAt     time.Time `gorm:"index:idx_outbox_status_created"`
	UpdatedAt     time.Time
	PublishedAt   *time.Time
}

// TableName 固定表名，避免GORM按复数规则猜出歧义表名
func (Message) TableName() string { return "outbox_messages" }

// ToEnvelope 把一行outbox记录还原成待发布的事件信封
func (m *Message) ToEnvelope() *envelope.Envelope {
	return &envelope.Envelope{
		EventID:       m.EventID,
		EventType:     m.EventType,
		CorrelationID: m.CorrelationID,
		SchemaVersion: envelope.SchemaVersion,
		OccurredAt:    m.CreatedAt,
		PartitionKey:  m.PartitionKey,
		Payload:       m.Payload,
	}
}
