package inbox

import (
	"context"
	"fmt"
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/xiebiao/saga-commerce/pkg/envelope"
	apperrors "github.com/xiebiao/saga-commerce/pkg/errors"
	"github.com/xiebiao/saga-commerce/pkg/metrics"
)

var tracer = otel.Tracer("saga-commerce/inbox")

// entryStore是Processor实际依赖的Store方法子集
type entryStore interface {
	TryBegin(ctx context.Context, eventID, eventType, correlationID string, maxAttempts int) (*Entry, bool, error)
	MarkProcessed(ctx context.Context, eventID string) error
	RecordAttemptFailure(ctx context.Context, eventID, lastErr string) error
}

// DeadLetterSink是重试耗尽后转入死信队列所需的最小能力
type DeadLetterSink interface {
	Enqueue(ctx context.Context, service, reason string, env *envelope.Envelope) error
}

// ProcessorConfig 对应spec配置键 inbox.max_attempts
type ProcessorConfig struct {
	MaxAttempts int
	ServiceName string
}

func (c *ProcessorConfig) setDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
}

// Processor 把一条transport投递转换成"查重 → 分发 → 确认/拒绝"的幂等处理流程，
// 是inbox模式唯一允许调用业务Registry的地方——消费者代码不直接调用handler。
type Processor struct {
	store    entryStore
	registry *Registry
	dlq      DeadLetterSink
	cfg      ProcessorConfig
}

// NewProcessor 创建收件箱处理器
func NewProcessor(store *Store, registry *Registry, dlq DeadLetterSink, cfg ProcessorConfig) *Processor {
	cfg.setDefaults()
	return &Processor{store: store, registry: registry, dlq: dlq, cfg: cfg}
}

// Delivery是Processor能处理的投递的最小形状，与mq.Delivery字段兼容但不直接依赖mq包
type Delivery struct {
	Envelope *envelope.Envelope
	Ack      func()
	Nack     func(requeue bool)
}

// Handle 处理一条投递：先查重，命中则直接Ack跳过；未命中则分发给注册的handler，
// 成功标记processed并Ack，失败则累加尝试次数，未超限Nack(requeue=true)交给
// transport重试，超限则转入死信队列并Ack（消息不再重新入队，责任移交给DLQ）。
func (p *Processor) Handle(ctx context.Context, d Delivery) error {
	env := d.Envelope
	ctx, span := tracer.Start(ctx, "inbox.handle", trace.WithAttributes(
		attribute.String("event_id", env.EventID),
		attribute.String("event_type", env.EventType),
	))
	defer span.End()

	entry, alreadyProcessed, err := p.store.TryBegin(ctx, env.EventID, env.EventType, env.CorrelationID, p.cfg.MaxAttempts)
	if err != nil {
		return fmt.Errorf("收件箱登记失败: %w", err)
	}
	if alreadyProcessed {
		log.Printf("✅ 事件已处理过，跳过(幂等) event_id=%s", env.EventID)
		d.Ack()
		return nil
	}

	handler, ok := p.registry.Lookup(env.EventType)
	if !ok {
		log.Printf("❌ 未注册的事件类型，视为不可恢复错误 event_type=%s event_id=%s", env.EventType, env.EventID)
		p.sendToDLQ(ctx, env, "no handler registered for event type "+env.EventType)
		d.Ack()
		metrics.IncCounterVec(metrics.InboxAttemptsTotal, map[string]string{"service": p.cfg.ServiceName, "result": "dlq"})
		return nil
	}

	handleErr := handler(ctx, env)
	if handleErr == nil {
		if markErr := p.store.MarkProcessed(ctx, env.EventID); markErr != nil {
			log.Printf("⚠️ 标记已处理失败 event_id=%s: %v", env.EventID, markErr)
		}
		d.Ack()
		metrics.IncCounterVec(metrics.InboxAttemptsTotal, map[string]string{"service": p.cfg.ServiceName, "result": "success"})
		log.Printf("✅ 事件处理成功 event_id=%s event_type=%s", env.EventID, env.EventType)
		return nil
	}

	if recErr := p.store.RecordAttemptFailure(ctx, env.EventID, handleErr.Error()); recErr != nil {
		log.Printf("⚠️ 记录失败尝试出错 event_id=%s: %v", env.EventID, recErr)
	}

	attempts := entry.Attempts + 1
	kind := apperrors.ClassifyErr(handleErr)

	if !kind.Retryable() || attempts >= p.cfg.MaxAttempts {
		log.Printf("❌ 事件处理重试耗尽或不可重试，转入死信队列 event_id=%s attempts=%d: %v", env.EventID, attempts, handleErr)
		p.sendToDLQ(ctx, env, handleErr.Error())
		d.Ack()
		metrics.IncCounterVec(metrics.InboxAttemptsTotal, map[string]string{"service": p.cfg.ServiceName, "result": "dlq"})
		return nil
	}

	log.Printf("⚠️ 事件处理失败(将重试 %d/%d) event_id=%s: %v", attempts, p.cfg.MaxAttempts, env.EventID, handleErr)
	d.Nack(true)
	metrics.IncCounterVec(metrics.InboxAttemptsTotal, map[string]string{"service": p.cfg.ServiceName, "result": "retry"})
	return nil
}

func (p *Processor) sendToDLQ(ctx context.Context, env *envelope.Envelope, reason string) {
	if p.dlq == nil {
		return
	}
	if err := p.dlq.Enqueue(ctx, p.cfg.ServiceName, reason, env); err != nil {
		log.Printf("❌ 写入死信队列失败 event_id=%s: %v", env.EventID, err)
	}
}
