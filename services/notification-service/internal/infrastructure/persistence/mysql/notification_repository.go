package mysql

import (
	"context"
	"fmt"

	"github.com/xiebiao/saga-commerce/services/notification-service/internal/domain/notification"
	"gorm.io/gorm"
)

type notificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) notification.Repository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Create(ctx context.Context, rec *notification.Record) error {
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("写入通知记录失败: %w", err)
	}
	return nil
}
