package notification

import "context"

// Repository 通知记录仓储接口
type Repository interface {
	Create(ctx context.Context, r *Record) error
}
