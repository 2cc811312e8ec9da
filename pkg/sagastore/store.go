package sagastore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "github.com/xiebiao/saga-commerce/pkg/errors"
)

// ErrVersionConflict包装为业务层可识别的并发冲突错误（见pkg/errors的Kind taxonomy）
var ErrVersionConflict = apperrors.Concurrency("saga state was modified concurrently, retry with a fresh read")

// Store 持久化saga实例状态，所有更新都走乐观锁（Version列），
// 避免orchestrator的in-memory reply路径和recovery worker同时改写同一行时互相覆盖。
type Store struct {
	db *gorm.DB
}

// NewStore 创建saga状态存储
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Create 创建一个新saga实例，初始状态固定为NotStarted
func (s *Store) Create(ctx context.Context, id, sagaType, correlationID string) (*State, error) {
	state := &State{
		ID:            id,
		SagaType:      sagaType,
		CorrelationID: correlationID,
		Status:        StatusNotStarted,
		Version:       1,
	}
	if err := state.EncodeSteps(nil); err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Create(state).Error; err != nil {
		return nil, fmt.Errorf("创建saga状态失败: %w", err)
	}
	return state, nil
}

// Get 按saga id查询
func (s *Store) Get(ctx context.Context, id string) (*State, error) {
	var st State
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&st).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &st, nil
}

// GetByCorrelationID saga id和correlation-id是两个不同的业务键
// （saga id标识一次编排实例，correlation-id是跨服务关联同一笔业务请求的键），
// 回复消息按correlation-id查找对应的saga，而不是反过来假设两者相同。
func (s *Store) GetByCorrelationID(ctx context.Context, correlationID string) (*State, error) {
	var st State
	err := s.db.WithContext(ctx).Where("correlation_id = ?", correlationID).First(&st).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &st, nil
}

// CompareAndSwap 用乐观锁更新整行状态：update ... where id=? and version=?，
// 受影响行数为0说明版本已经被别人改过，返回ErrVersionConflict由调用方重新读取重试。
func (s *Store) CompareAndSwap(ctx context.Context, state *State) error {
	expectedVersion := state.Version
	state.Version = expectedVersion + 1

	result := s.db.WithContext(ctx).Model(&State{}).
		Where("id = ? AND version = ?", state.ID, expectedVersion).
		Updates(map[string]interface{}{
			"status":       state.Status,
			"current_step": state.CurrentStep,
			"steps":        state.Steps,
			"context":      state.Context,
			"version":      state.Version,
			"completed_at": state.CompletedAt,
		})

	if result.Error != nil {
		return fmt.Errorf("更新saga状态失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		state.Version = expectedVersion
		return ErrVersionConflict
	}
	return nil
}

// ClaimStuck 用FOR UPDATE SKIP LOCKED批量claim处于InProgress/Compensating状态
// 且超过stuckThreshold未更新的saga实例，供recovery worker独占式处理，
// 避免多个recovery实例同时对同一个卡住的saga做恢复动作（见SPEC_FULL §12）。
func (s *Store) ClaimStuck(ctx context.Context, workerID string, stuckThreshold, leaseFor time.Duration, limit int) ([]*State, error) {
	var claimed []*State

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cutoff := time.Now().Add(-stuckThreshold)
		now := time.Now()

		var rows []*State
		err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status IN ?", []Status{StatusInProgress, StatusCompensating}).
			Where("updated_at < ?", cutoff).
			Where("lease_expires < ?", now).
			Limit(limit).
			Find(&rows).Error
		if err != nil {
			return fmt.Errorf("查询卡住的saga失败: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}

		ids := make([]string, len(rows))
		for i, r := range rows {
			ids[i] = r.ID
		}
		expires := now.Add(leaseFor)
		if err := tx.Model(&State{}).Where("id IN ?", ids).
			Updates(map[string]interface{}{"lease_owner": workerID, "lease_expires": expires}).Error; err != nil {
			return fmt.Errorf("标记恢复租约失败: %w", err)
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

// ReleaseLease 恢复worker处理完一个实例后释放租约（无论成功与否，让下一轮可以重新claim）
func (s *Store) ReleaseLease(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Model(&State{}).Where("id = ?", id).
		Update("lease_owner", "").Error
}

// TypeStatusCount 是CountByTypeAndStatus的一行分组计数结果
type TypeStatusCount struct {
	SagaType string
	Status   Status
	Count    int64
}

// CountByTypeAndStatus 按(saga_type, status)分组统计saga实例数，
// 供recovery worker巡检时采样成saga_status_count指标（命中idx_saga_type_status）
func (s *Store) CountByTypeAndStatus(ctx context.Context) ([]TypeStatusCount, error) {
	var rows []TypeStatusCount
	err := s.db.WithContext(ctx).Model(&State{}).
		Select("saga_type, status, count(*) as count").
		Group("saga_type, status").
		Scan(&rows).Error
	return rows, err
}
