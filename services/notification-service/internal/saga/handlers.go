package saga

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	apperrors "github.com/xiebiao/saga-commerce/pkg/errors"
	"github.com/xiebiao/saga-commerce/pkg/envelope"
	"github.com/xiebiao/saga-commerce/services/notification-service/internal/domain/notification"
)

// orderNotificationEvent与internal/application/order/saga_definition.go里的
// orderNotificationEvent是同一份JSON形状，notification-service只关心
// 订单号，不需要完整的业务上下文
type orderNotificationEvent struct {
	OrderID uint   `json:"order_id"`
	OrderNo string `json:"order_no"`
}

// Handlers是notification-service的业务逻辑：它不回复任何reply topic，
// 是纯消费端参与方——inbox保证同一条通知事件只处理一次，这里只需要
// "发送"通知（落一条审计记录，真实发送走短信/邮件网关，这里mock为打日志）
type Handlers struct {
	repo notification.Repository
}

func NewHandlers(repo notification.Repository) *Handlers {
	return &Handlers{repo: repo}
}

// OnOrderConfirmed处理"order.order_confirmed"事件
func (h *Handlers) OnOrderConfirmed(ctx context.Context, env *envelope.Envelope) error {
	return h.notify(ctx, env, notification.KindOrderConfirmed)
}

// OnOrderCancelled处理"order.order_cancelled"事件
func (h *Handlers) OnOrderCancelled(ctx context.Context, env *envelope.Envelope) error {
	return h.notify(ctx, env, notification.KindOrderCancelled)
}

func (h *Handlers) notify(ctx context.Context, env *envelope.Envelope, kind notification.Kind) error {
	var evt orderNotificationEvent
	if err := json.Unmarshal(env.Payload, &evt); err != nil {
		return fmt.Errorf("解析通知事件失败: %w", err)
	}

	log.Printf("📣 [mock通知] 订单%s: %s", evt.OrderNo, kind.String())

	record := &notification.Record{
		OrderID: evt.OrderID,
		OrderNo: evt.OrderNo,
		Kind:    kind,
		SentAt:  time.Now(),
	}
	if err := h.repo.Create(ctx, record); err != nil {
		return apperrors.TransientStorage(err, "写入通知记录失败")
	}
	return nil
}
