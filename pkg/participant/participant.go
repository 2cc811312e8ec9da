// Package participant 提供saga参与方（库存、支付、物流等服务）接入
// 编排事件流所需的胶水代码：把一条已经去重过的命令事件分发给业务逻辑，
// 再把业务结果包装成回复事件发回outbox。
//
// 参与方不会反过来import pkg/saga——orchestrator通过correlation-id和
// 步骤名驱动状态机，参与方只认事件信封，两边靠回复事件的payload约定
// （ReplyPayload）解耦，这样库存/支付/物流服务不需要知道saga编排细节，
// 和教学要点"补偿操作完全独立"是同一种解耦思路（见pkg/saga）。
package participant

import (
	"context"
	"fmt"

	"github.com/xiebiao/saga-commerce/pkg/envelope"
)

// Outcome是参与方业务逻辑处理一条命令后的结果。Success=false表示业务性拒绝
// （库存不足、余额不足），这和基础设施错误（数据库连不上）是两回事：
// 前者要正常回复saga orchestrator，不能让inbox当成需要重试的故障处理。
type Outcome struct {
	Success bool
	Output  map[string]interface{}
	Reason  string
}

// BusinessHandler是参与方真正的业务逻辑。返回的error只应表示基础设施性故障
// （数据库、下游依赖不可用），会被Processor(来自pkg/inbox)按transient/unrecoverable
// 分类后决定重试还是转入死信队列。业务拒绝通过Outcome.Success=false表达，而不是error。
type BusinessHandler func(ctx context.Context, env *envelope.Envelope) (Outcome, error)

// OutboxEnqueuer是Handler回复结果所需的最小能力，由pkg/outbox.Store满足
type OutboxEnqueuer interface {
	Enqueue(ctx context.Context, topic string, maxRetries int, env *envelope.Envelope) error
}

// ReplyPayload是saga.reply系列事件的payload，orchestrator的inbox handler
// 解码出StepName/Success/Output/Reason后转换成saga.StepResult调用OnReply
type ReplyPayload struct {
	StepName string                 `json:"step_name"`
	Success  bool                   `json:"success"`
	Output   map[string]interface{} `json:"output,omitempty"`
	Reason   string                 `json:"reason,omitempty"`
}

// ReplyPublisher把参与方的处理结果经outbox发到saga编排器监听的reply topic
type ReplyPublisher struct {
	outbox     OutboxEnqueuer
	replyTopic string
	maxRetries int
}

// NewReplyPublisher 创建回复发布器
func NewReplyPublisher(outbox OutboxEnqueuer, replyTopic string, maxRetries int) *ReplyPublisher {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	return &ReplyPublisher{outbox: outbox, replyTopic: replyTopic, maxRetries: maxRetries}
}

// Reply 把一次步骤执行结果投递到reply topic，partitionKey沿用correlation-id，
// 保证同一笔saga的所有回复落在transport的同一分区、按顺序消费
func (r *ReplyPublisher) Reply(ctx context.Context, correlationID, stepName string, outcome Outcome) error {
	payload := ReplyPayload{
		StepName: stepName,
		Success:  outcome.Success,
		Output:   outcome.Output,
		Reason:   outcome.Reason,
	}
	env, err := envelope.New("saga.reply", correlationID, correlationID, payload)
	if err != nil {
		return fmt.Errorf("构造回复信封失败: %w", err)
	}
	if err := r.outbox.Enqueue(ctx, r.replyTopic, r.maxRetries, env); err != nil {
		return fmt.Errorf("发布回复事件失败: %w", err)
	}
	return nil
}

// Handler把一个静态的业务处理函数适配成inbox.HandlerFunc：调用业务逻辑，
// 把结果（无论成功还是业务拒绝）回复给orchestrator，只把真正的基础设施
// 错误原样向上抛给inbox决定是否重试。
type Handler struct {
	stepName string
	business BusinessHandler
	replies  *ReplyPublisher
}

// NewHandler 创建一个步骤处理器
func NewHandler(stepName string, business BusinessHandler, replies *ReplyPublisher) *Handler {
	return &Handler{stepName: stepName, business: business, replies: replies}
}

// Handle 适配inbox.HandlerFunc签名：func(ctx, *envelope.Envelope) error
func (h *Handler) Handle(ctx context.Context, env *envelope.Envelope) error {
	outcome, err := h.business(ctx, env)
	if err != nil {
		return err
	}
	return h.replies.Reply(ctx, env.CorrelationID, h.stepName, outcome)
}
