package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/xiebiao/saga-commerce/pkg/envelope"
)

// Store 持久化发件箱行，所有写操作都接受一个可选的*gorm.DB用于参与调用方的事务。
//
// 教学要点：
// Enqueue必须能在调用方已经开启的业务事务里执行（同一个tx），否则"业务变更"和
// "事件入箱"就不是原子的了——这正是outbox模式存在的意义。
type Store struct {
	db *gorm.DB
}

// NewStore 创建发件箱存储，db通常是顶层*gorm.DB，调用方用WithTx拿到事务范围内的Store
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithTx 返回一个绑定到tx的Store，供业务repository在同一个db.Transaction内调用
// store.WithTx(tx).Enqueue(...)
func (s *Store) WithTx(tx *gorm.DB) *Store {
	return &Store{db: tx}
}

// Enqueue 把一个已经构造好的事件信封写入发件箱表。payload已经是最终形态，
// relay发布时不会也不应该再加工它。
func (s *Store) Enqueue(ctx context.Context, topic string, maxRetries int, env *envelope.Envelope) error {
	msg := &Message{
		EventID:       env.EventID,
		EventType:     env.EventType,
		CorrelationID: env.CorrelationID,
		PartitionKey:  env.PartitionKey,
		Topic:         topic,
		Payload:       env.Payload,
		Status:        StatusPending,
		MaxRetries:    maxRetries,
	}
	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("写入发件箱失败: %w", err)
	}
	return nil
}

// ClaimBatch 用FOR UPDATE SKIP LOCKED原子地claim一批待发布的行，避免多个relay实例
// 抢同一行。claim成功即把lease_owner/lease_expires写入同一行，claim本身和状态读取
// 在一个事务里完成。
func (s *Store) ClaimBatch(ctx context.Context, workerID string, batchSize int, leaseFor time.Duration) ([]*Message, error) {
	var claimed []*Message

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []*Message
		now := time.Now()

		err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ?", StatusPending).
			Where("lease_expires < ?", now).
			Order("created_at asc").
			Limit(batchSize).
			Find(&rows).Error
		if err != nil {
			return fmt.Errorf("查询待发布事件失败: %w", err)
		}

		if len(rows) == 0 {
			return nil
		}

		ids := make([]uint64, len(rows))
		for i, r := range rows {
			ids[i] = r.ID
		}

		expires := now.Add(leaseFor)
		if err := tx.Model(&Message{}).Where("id IN ?", ids).
			Updates(map[string]interface{}{
				"lease_owner":   workerID,
				"lease_expires": expires,
			}).Error; err != nil {
			return fmt.Errorf("标记租约失败: %w", err)
		}

		for _, r := range rows {
			r.LeaseOwner = workerID
			r.LeaseExpires = expires
		}
		claimed = rows
		return nil
	})

	return claimed, err
}

// MarkPublished 把一行标记为已发布的终态
func (s *Store) MarkPublished(ctx context.Context, id uint64) error {
	now := time.Now()
	return s.db.WithContext(ctx).Model(&Message{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       StatusPublished,
			"published_at": &now,
			"lease_owner":  "",
		}).Error
}

// RecordFailure 记录一次发布失败，累加尝试次数；调用方已经判断是否达到max_retries，
// 这里只负责持久化那个决定（ok 达到上限则把状态置为failed，外部DLQ流程再接手）。
func (s *Store) RecordFailure(ctx context.Context, id uint64, lastErr string, exhausted bool) error {
	updates := map[string]interface{}{
		"attempts":    gorm.Expr("attempts + 1"),
		"last_error":  truncate(lastErr, 512),
		"lease_owner": "",
	}
	if exhausted {
		updates["status"] = StatusFailed
	}
	return s.db.WithContext(ctx).Model(&Message{}).Where("id = ?", id).Updates(updates).Error
}

// FindByEventID 按event-id查询，主要用于测试和运维排障
func (s *Store) FindByEventID(ctx context.Context, eventID string) (*Message, error) {
	var m Message
	err := s.db.WithContext(ctx).Where("event_id = ?", eventID).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

// CountByStatus 供Prometheus积压量指标采样使用
func (s *Store) CountByStatus(ctx context.Context, status Status) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&Message{}).Where("status = ?", status).Count(&n).Error
	return n, err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
