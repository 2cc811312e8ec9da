package inbox

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// Store 持久化收件箱登记行
type Store struct {
	db *gorm.DB
}

// NewStore 创建收件箱存储
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// TryBegin 尝试登记一个event_id为"正在处理"。如果该event_id已经存在且状态是
// processed，返回alreadyProcessed=true，调用方应该直接Ack并跳过业务逻辑——
// 这是幂等性的核心：同一个event_id的业务副作用只会真正发生一次。
//
// 如果该event_id已存在但之前failed（尝试次数未超限），返回alreadyProcessed=false
// 并把已有的Entry返回，调用方据此继续重试而不是从attempts=0重新开始计数。
func (s *Store) TryBegin(ctx context.Context, eventID, eventType, correlationID string, maxAttempts int) (entry *Entry, alreadyProcessed bool, err error) {
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Entry
		lookupErr := tx.Where("event_id = ?", eventID).First(&existing).Error

		if lookupErr == nil {
			if existing.Status == StatusProcessed {
				entry = &existing
				alreadyProcessed = true
				return nil
			}
			entry = &existing
			return nil
		}

		if !errors.Is(lookupErr, gorm.ErrRecordNotFound) {
			return lookupErr
		}

		fresh := &Entry{
			EventID:       eventID,
			EventType:     eventType,
			CorrelationID: correlationID,
			Status:        StatusFailed, // 乐观占位，真正处理完成后翻转为processed
			MaxAttempts:   maxAttempts,
			ReceivedAt:    time.Now(),
		}
		if createErr := tx.Create(fresh).Error; createErr != nil {
			return createErr
		}
		entry = fresh
		return nil
	})
	return entry, alreadyProcessed, err
}

// MarkProcessed 把一行标记为已成功处理的终态
func (s *Store) MarkProcessed(ctx context.Context, eventID string) error {
	now := time.Now()
	return s.db.WithContext(ctx).Model(&Entry{}).Where("event_id = ?", eventID).
		Updates(map[string]interface{}{
			"status":       StatusProcessed,
			"processed_at": &now,
		}).Error
}

// RecordAttemptFailure 累加尝试次数并记录错误信息；只返回error，调用方用TryBegin
// 返回的Entry.Attempts加一自行判断是否达到MaxAttempts进而转入死信队列
func (s *Store) RecordAttemptFailure(ctx context.Context, eventID, lastErr string) error {
	return s.db.WithContext(ctx).Model(&Entry{}).Where("event_id = ?", eventID).
		Updates(map[string]interface{}{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": truncate(lastErr, 512),
		}).Error
}

// Get 按event_id查询登记行
func (s *Store) Get(ctx context.Context, eventID string) (*Entry, error) {
	var e Entry
	err := s.db.WithContext(ctx).Where("event_id = ?", eventID).First(&e).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
