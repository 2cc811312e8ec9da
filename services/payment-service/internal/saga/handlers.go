// Package saga把payment-service接入订单saga的命令流：charge_payment的执行
// 和补偿（退款）沿用grpc/handler.PaymentServiceServer同样的Mock扣款规则，
// 但由本包自己实现（扣款成败由注入的mockSuccess函数决定），不调用
// PaymentServiceServer；触发源是inbox派发的命令事件而不是gRPC请求。
package saga

import (
	"context"

	"github.com/xiebiao/saga-commerce/pkg/envelope"
	apperrors "github.com/xiebiao/saga-commerce/pkg/errors"
	"github.com/xiebiao/saga-commerce/pkg/participant"
	"github.com/xiebiao/saga-commerce/services/payment-service/internal/domain/payment"
)

// StepChargePayment是orchestrator静态注册表里该服务要处理的步骤名，
// 对应事件类型"saga.charge_payment"(执行)和
// "saga.charge_payment.compensate"(补偿=退款)。
const StepChargePayment = "charge_payment"

type chargePaymentCommand struct {
	OrderID uint   `json:"order_id"`
	OrderNo string `json:"order_no"`
	UserID  uint   `json:"user_id"`
	Amount  int64  `json:"amount"`
}

type refundPaymentCommand struct {
	OrderID uint   `json:"order_id"`
	OrderNo string `json:"order_no"`
	Amount  int64  `json:"amount"`
}

// Handlers把支付仓储适配成participant.BusinessHandler
type Handlers struct {
	repo payment.Repository
	rng  func() bool // 教学用Mock扣款结果，真实实现会换成第三方支付网关调用
}

// NewHandlers 创建支付saga命令处理器
func NewHandlers(repo payment.Repository, mockSuccess func() bool) *Handlers {
	return &Handlers{repo: repo, rng: mockSuccess}
}

// ChargePayment处理charge_payment命令：幂等建档(按order_id查重，已支付直接
// 当成功回复)，否则按Mock规则决定本次扣款成败——成败都是业务结果，只有
// 数据库层面的错误才当基础设施故障向上抛给inbox重试。
func (h *Handlers) ChargePayment(ctx context.Context, env *envelope.Envelope) (participant.Outcome, error) {
	var cmd chargePaymentCommand
	if err := env.Unmarshal(&cmd); err != nil {
		return participant.Outcome{}, apperrors.Malformed(err, "charge_payment命令payload解析失败")
	}

	existing, _ := h.repo.FindByOrderID(ctx, cmd.OrderID)
	if existing != nil && existing.Status == payment.PaymentStatusPaid {
		return participant.Outcome{Success: true, Output: map[string]interface{}{"payment_no": existing.PaymentNo}}, nil
	}

	p := &payment.Payment{
		PaymentNo: payment.GeneratePaymentNo(),
		OrderID:   cmd.OrderID,
		Amount:    cmd.Amount,
	}

	if h.rng() {
		p.Status = payment.PaymentStatusPaid
		p.ThirdPartyNo = "MOCK" + p.PaymentNo
		if err := h.repo.Create(ctx, p); err != nil {
			return participant.Outcome{}, apperrors.TransientStorage(err, "保存支付记录失败")
		}
		return participant.Outcome{Success: true, Output: map[string]interface{}{"payment_no": p.PaymentNo}}, nil
	}

	p.Status = payment.PaymentStatusFailed
	if err := h.repo.Create(ctx, p); err != nil {
		return participant.Outcome{}, apperrors.TransientStorage(err, "保存支付记录失败")
	}
	return participant.Outcome{Success: false, Reason: "扣款失败"}, nil
}

// CompensateChargePayment处理charge_payment的补偿命令：退款。只对已支付的
// 记录生效，订单从未真正扣款成功时这里是幂等的no-op。
func (h *Handlers) CompensateChargePayment(ctx context.Context, env *envelope.Envelope) (participant.Outcome, error) {
	var cmd refundPaymentCommand
	if err := env.Unmarshal(&cmd); err != nil {
		return participant.Outcome{}, apperrors.Malformed(err, "refund_payment命令payload解析失败")
	}

	p, err := h.repo.FindByOrderID(ctx, cmd.OrderID)
	if err != nil {
		// 从未建档(扣款本来就没发生过)，补偿天然成立
		return participant.Outcome{Success: true}, nil
	}
	if !p.CanRefund() {
		return participant.Outcome{Success: true}, nil
	}

	p.UpdateStatus(payment.PaymentStatusRefunded)
	if err := h.repo.Update(ctx, p); err != nil {
		return participant.Outcome{}, apperrors.TransientStorage(err, "退款失败")
	}
	return participant.Outcome{Success: true}, nil
}
