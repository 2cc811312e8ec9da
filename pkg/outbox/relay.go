package outbox

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/xiebiao/saga-commerce/pkg/envelope"
	"github.com/xiebiao/saga-commerce/pkg/metrics"
)

// Publisher是relay依赖的transport能力，故意只取mq.Transport的子集，
// 方便单元测试用假实现替换而不必拉起真实RabbitMQ
type Publisher interface {
	Publish(ctx context.Context, topic string, partitionCount int, env *envelope.Envelope) error
}

// DeadLetterSink 是relay在重试耗尽后把消息移入死信队列所需的最小能力；
// 具体实现由pkg/dlq.Store提供，这里只声明接口以避免outbox包反向依赖dlq包
type DeadLetterSink interface {
	Enqueue(ctx context.Context, service, reason string, env *envelope.Envelope) error
}

// RelayConfig 对应spec配置键 outbox.poll_interval_ms / outbox.batch_size / outbox.max_retries
type RelayConfig struct {
	PollInterval   time.Duration
	BatchSize      int
	MaxRetries     int
	LeaseDuration  time.Duration
	PartitionCount int
	WorkerID       string
	ServiceName    string // 记录死信时标注来源服务
}

func (c *RelayConfig) setDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	if c.LeaseDuration <= 0 {
		c.LeaseDuration = 30 * time.Second
	}
	if c.PartitionCount <= 0 {
		c.PartitionCount = 1
	}
	if c.WorkerID == "" {
		c.WorkerID = fmt.Sprintf("relay-%d", time.Now().UnixNano())
	}
}

// relayStore是Relay实际用到的Store方法子集，便于单元测试用假实现替换
// 而不必连接真实数据库
type relayStore interface {
	ClaimBatch(ctx context.Context, workerID string, batchSize int, leaseFor time.Duration) ([]*Message, error)
	MarkPublished(ctx context.Context, id uint64) error
	RecordFailure(ctx context.Context, id uint64, lastErr string, exhausted bool) error
	CountByStatus(ctx context.Context, status Status) (int64, error)
}

// Relay 轮询发件箱表并把待发布事件投递到transport，是outbox模式唯一的"对外发布点"——
// 业务代码永远不直接调用transport.Publish，所有出站事件都必须先落到outbox_messages表。
type Relay struct {
	store     relayStore
	publisher Publisher
	dlq       DeadLetterSink
	cfg       RelayConfig

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewRelay 创建发件箱中继
func NewRelay(store *Store, publisher Publisher, dlq DeadLetterSink, cfg RelayConfig) *Relay {
	cfg.setDefaults()
	return &Relay{
		store:     store,
		publisher: publisher,
		dlq:       dlq,
		cfg:       cfg,
		stopCh:    make(chan struct{}),
	}
}

// Start 启动后台轮询goroutine
func (r *Relay) Start() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ticker := time.NewTicker(r.cfg.PollInterval)
		defer ticker.Stop()

		log.Printf("📤 outbox relay已启动: interval=%s batch=%d worker=%s", r.cfg.PollInterval, r.cfg.BatchSize, r.cfg.WorkerID)

		for {
			select {
			case <-r.stopCh:
				log.Printf("📤 outbox relay停止中...")
				return
			case <-ticker.C:
				if err := r.Tick(context.Background()); err != nil {
					log.Printf("⚠️ outbox relay轮询出错: %v", err)
				}
			}
		}
	}()
}

// Stop 优雅停止relay，等待当前批次处理完
func (r *Relay) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()
	log.Printf("📤 outbox relay已停止")
}

var tracer = otel.Tracer("saga-commerce/outbox")

// Tick 处理一批待发布事件；公开出来是为了让测试和手动触发不必等ticker
func (r *Relay) Tick(ctx context.Context) error {
	rows, err := r.store.ClaimBatch(ctx, r.cfg.WorkerID, r.cfg.BatchSize, r.cfg.LeaseDuration)
	if err != nil {
		return fmt.Errorf("claim发件箱批次失败: %w", err)
	}

	if len(rows) > 0 {
		log.Printf("🔄 outbox relay处理%d条待发布事件", len(rows))
	}

	for _, row := range rows {
		r.publishOne(ctx, row)
	}

	if backlog, err := r.store.CountByStatus(ctx, StatusPending); err != nil {
		log.Printf("⚠️ 采样发件箱积压量失败: %v", err)
	} else {
		metrics.SetGaugeVec(metrics.OutboxBacklog, map[string]string{"service": r.cfg.ServiceName}, float64(backlog))
	}
	return nil
}

func (r *Relay) publishOne(ctx context.Context, row *Message) {
	ctx, span := tracer.Start(ctx, "outbox.publish",
		trace.WithAttributes(
			attribute.String("event_id", row.EventID),
			attribute.String("event_type", row.EventType),
			attribute.String("correlation_id", row.CorrelationID),
		))
	defer span.End()

	env := row.ToEnvelope()

	err := r.publisher.Publish(ctx, row.Topic, r.cfg.PartitionCount, env)
	if err == nil {
		if markErr := r.store.MarkPublished(ctx, row.ID); markErr != nil {
			log.Printf("⚠️ 标记已发布失败 event_id=%s: %v", row.EventID, markErr)
		} else {
			log.Printf("✅ outbox relay已发布 event_id=%s topic=%s", row.EventID, row.Topic)
		}
		return
	}

	attempts := row.Attempts + 1
	exhausted := attempts >= row.MaxRetries

	if recErr := r.store.RecordFailure(ctx, row.ID, err.Error(), exhausted); recErr != nil {
		log.Printf("⚠️ 记录发布失败状态出错 event_id=%s: %v", row.EventID, recErr)
	}

	if !exhausted {
		log.Printf("⚠️ outbox relay发布失败(将重试 %d/%d) event_id=%s: %v", attempts, row.MaxRetries, row.EventID, err)
		return
	}

	log.Printf("❌ outbox relay发布重试耗尽，转入死信队列 event_id=%s: %v", row.EventID, err)
	if r.dlq != nil {
		if dlqErr := r.dlq.Enqueue(ctx, r.cfg.ServiceName, err.Error(), env); dlqErr != nil {
			log.Printf("❌ 写入死信队列失败 event_id=%s: %v", row.EventID, dlqErr)
		}
	}
}
