// Package dlq 实现死信队列（Dead Letter Queue）
//
// 当outbox relay耗尽发布重试，或inbox processor耗尽处理重试（或遇到不可重试错误），
// 事件最终落到这里等待人工介入。死信队列本身不做自动重试——它是"人要来看一眼"
// 的终点，提供按服务检索（不支持按原因过滤），以及operator驱动的重新投递（Reprocess）。
package dlq

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/xiebiao/saga-commerce/pkg/envelope"
	"github.com/xiebiao/saga-commerce/pkg/metrics"
)

// Entry 对应dead_letter_messages表的一行
type Entry struct {
	ID            uint64 `gorm:"primaryKey;autoIncrement"`
	EventID       string `gorm:"size:64;index"`
	EventType     string `gorm:"size:128;index"`
	CorrelationID string `gorm:"size:64;index"`
	Service       string `gorm:"size:64;index"`
	Reason        string `gorm:"size:1024"`
	Payload       []byte `gorm:"type:json"`
	OperatorNote  string `gorm:"size:1024"`
	Reprocessed   bool   `gorm:"index"`
	MovedAt       time.Time `gorm:"index"`
	ReprocessedAt *time.Time
}

// TableName 固定表名
func (Entry) TableName() string { return "dead_letter_messages" }

// Reprocessor是Reprocess重新提交事件所需的最小能力，由调用方的outbox/transport实现
type Reprocessor interface {
	Publish(ctx context.Context, topic string, partitionCount int, env *envelope.Envelope) error
}

// Store 持久化死信队列
type Store struct {
	db *gorm.DB
}

// NewStore 创建死信队列存储
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Enqueue 写入一条死信记录；这是outbox.Relay和inbox.Processor共同依赖的接口形状
// （参见outbox.DeadLetterSink / inbox.DeadLetterSink）
func (s *Store) Enqueue(ctx context.Context, service, reason string, env *envelope.Envelope) error {
	entry := &Entry{
		EventID:       env.EventID,
		EventType:     env.EventType,
		CorrelationID: env.CorrelationID,
		Service:       service,
		Reason:        reason,
		Payload:       env.Payload,
		MovedAt:       time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return err
	}
	s.sampleSize(ctx, service)
	return nil
}

// sampleSize把指定service当前的死信积压量刷到dlq_size指标；采样失败只记日志，
// 不影响Enqueue/Reprocess本身的结果
func (s *Store) sampleSize(ctx context.Context, service string) {
	n, err := s.CountByService(ctx, service)
	if err != nil {
		return
	}
	metrics.SetGaugeVec(metrics.DLQSize, map[string]string{"service": service}, float64(n))
}

// List 按service过滤查询死信记录，供operator triage API使用
func (s *Store) List(ctx context.Context, service string, limit int) ([]*Entry, error) {
	var entries []*Entry
	q := s.db.WithContext(ctx).Order("moved_at desc")
	if service != "" {
		q = q.Where("service = ?", service)
	}
	if limit <= 0 {
		limit = 50
	}
	err := q.Limit(limit).Find(&entries).Error
	return entries, err
}

// AddOperatorNote 给一条死信记录附加人工排查备注
func (s *Store) AddOperatorNote(ctx context.Context, id uint64, note string) error {
	return s.db.WithContext(ctx).Model(&Entry{}).Where("id = ?", id).
		Update("operator_note", note).Error
}

// Reprocess 把一条死信记录重新发布到调用方指定的topic，标记为已重新投递。
// Entry不记录原topic，目标topic完全由参数决定；id不存在时直接返回nil。
// 调用方(operator API)负责保证重新投递前已经解决了根因，否则事件会再次失败。
func (s *Store) Reprocess(ctx context.Context, id uint64, topic string, partitionCount int, publisher Reprocessor) error {
	var entry Entry
	if err := s.db.WithContext(ctx).First(&entry, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}

	env := &envelope.Envelope{
		EventID:       entry.EventID,
		EventType:     entry.EventType,
		CorrelationID: entry.CorrelationID,
		SchemaVersion: envelope.SchemaVersion,
		OccurredAt:    time.Now().UTC(),
		PartitionKey:  entry.CorrelationID,
		Payload:       entry.Payload,
	}

	if err := publisher.Publish(ctx, topic, partitionCount, env); err != nil {
		return err
	}

	now := time.Now()
	if err := s.db.WithContext(ctx).Model(&Entry{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"reprocessed":    true,
			"reprocessed_at": &now,
		}).Error; err != nil {
		return err
	}
	s.sampleSize(ctx, entry.Service)
	return nil
}

// CountByService 供Prometheus死信队列积压量指标采样使用
func (s *Store) CountByService(ctx context.Context, service string) (int64, error) {
	var n int64
	q := s.db.WithContext(ctx).Model(&Entry{}).Where("reprocessed = ?", false)
	if service != "" {
		q = q.Where("service = ?", service)
	}
	err := q.Count(&n).Error
	return n, err
}
