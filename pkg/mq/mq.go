// Package mq 基于RabbitMQ实现at-least-once消息传输契约
//
// RabbitMQ本身没有Kafka式的分区日志，但outbox/inbox层要求"同一个key的事件
// 严格按发布顺序交付"。这里用固定数量的队列模拟分区：每个topic声明
// partitionCount个队列（topic.p0 ... topic.p(N-1)），发布时用FNV哈希把
// partitionKey映射到一个分区N，路由键就是"topic.N"。RabbitMQ对单一消费者
// 保证队列内消息按入队顺序投递，所以只要每个分区只有一个消费者在消费，
// 分区内FIFO就成立。
//
// Exchange类型固定为topic，方便将来按通配符扩展订阅（如"order.#"）。
package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/xiebiao/saga-commerce/pkg/envelope"
)

// MalformedSink接收Subscribe无法解析成envelope.Envelope的原始消息，
// 由dlq.Store实现——Transport本身不持有数据库连接，这个依赖必须从外部注入。
type MalformedSink interface {
	Enqueue(ctx context.Context, service, reason string, env *envelope.Envelope) error
}

// Transport 是进程内唯一的连接持有者；Publish/Subscribe都复用同一条连接，
// 各自开自己的Channel（amqp.Channel并发不安全，不能跨goroutine共享）。
type Transport struct {
	conn     *amqp.Connection
	exchange string

	mu         sync.Mutex
	pubCh      *amqp.Channel
	partitions map[string]int // topic -> 已声明的分区数

	dlqService string
	dlq        MalformedSink
}

// SetMalformedSink注册Subscribe在信封解析失败时的死信出口；未注册时
// 解析失败的消息只能记日志后丢弃（见(t *Transport) routeMalformed）。
func (t *Transport) SetMalformedSink(service string, sink MalformedSink) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dlqService = service
	t.dlq = sink
}

// NewTransport 连接RabbitMQ并声明顶层的topic exchange
func NewTransport(url, exchange string) (*Transport, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("连接RabbitMQ失败: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("创建Channel失败: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("声明Exchange失败: %w", err)
	}

	log.Printf("✅ transport已连接: Exchange=%s", exchange)

	return &Transport{
		conn:       conn,
		exchange:   exchange,
		pubCh:      ch,
		partitions: make(map[string]int),
	}, nil
}

// Close 关闭底层连接
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pubCh != nil {
		t.pubCh.Close()
	}
	if t.conn != nil {
		return t.conn.Close()
	}
	return nil
}

// Partition 计算partitionKey落在哪个分区；同一个key在同一个topic上
// 永远落到同一个分区号，满足"static partition count, key→partition稳定"
func Partition(partitionKey string, partitionCount int) int {
	if partitionCount <= 0 {
		partitionCount = 1
	}
	h := fnv.New32a()
	h.Write([]byte(partitionKey))
	return int(h.Sum32() % uint32(partitionCount))
}

// EnsureTopic 声明一个topic的partitionCount个分区队列并绑定到exchange，
// 发布和订阅双方都要先调用它（订阅方在启动时调用，发布方在首次Publish该
// topic时调用），保证无论先启动哪一端都不会丢消息。
func (t *Transport) EnsureTopic(topic string, partitionCount int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.partitions[topic]; ok {
		if existing != partitionCount {
			return fmt.Errorf("topic %s 分区数已固定为%d，不能改为%d", topic, existing, partitionCount)
		}
		return nil
	}

	ch, err := t.conn.Channel()
	if err != nil {
		return fmt.Errorf("创建Channel失败: %w", err)
	}
	defer ch.Close()

	for i := 0; i < partitionCount; i++ {
		queueName := partitionQueueName(topic, i)
		routingKey := partitionRoutingKey(topic, i)

		if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
			return fmt.Errorf("声明队列%s失败: %w", queueName, err)
		}
		if err := ch.QueueBind(queueName, routingKey, t.exchange, false, nil); err != nil {
			return fmt.Errorf("绑定队列%s失败: %w", queueName, err)
		}
	}

	t.partitions[topic] = partitionCount
	log.Printf("✅ topic已就绪: %s, 分区数=%d", topic, partitionCount)
	return nil
}

func partitionQueueName(topic string, partition int) string {
	return fmt.Sprintf("%s.p%d", topic, partition)
}

func partitionRoutingKey(topic string, partition int) string {
	return fmt.Sprintf("%s.%d", topic, partition)
}

// Publish 把信封发布到topic的某个分区，分区号由partitionKey确定性派生。
// Publish自己会先调用EnsureTopic声明该topic的分区队列。
func (t *Transport) Publish(ctx context.Context, topic string, partitionCount int, env *envelope.Envelope) error {
	if err := t.EnsureTopic(topic, partitionCount); err != nil {
		return err
	}

	partition := Partition(env.PartitionKey, partitionCount)
	routingKey := partitionRoutingKey(topic, partition)

	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("信封序列化失败: %w", err)
	}

	t.mu.Lock()
	ch := t.pubCh
	t.mu.Unlock()

	err = ch.PublishWithContext(ctx, t.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:   "application/json",
		Body:          body,
		DeliveryMode:  amqp.Persistent,
		Timestamp:     env.OccurredAt,
		MessageId:     env.EventID,
		CorrelationId: env.CorrelationID,
		Type:          env.EventType,
		Headers: amqp.Table{
			"event-id":       env.EventID,
			"event-type":     env.EventType,
			"correlation-id": env.CorrelationID,
			"schema-version": env.SchemaVersion,
			"occurred-at":    env.OccurredAt.Format(time.RFC3339Nano),
		},
	})
	if err != nil {
		return fmt.Errorf("发布消息失败: %w", err)
	}

	log.Printf("📤 已发布: topic=%s partition=%d event_id=%s event_type=%s", topic, partition, env.EventID, env.EventType)
	return nil
}

// routeMalformed把一条连envelope.Envelope都解不出来的消息送进死信队列，
// 原因固定为"malformed"（对应spec场景S5）。不能直接丢弃——丢弃等于悄悄
// 吞掉一条永远无法诊断的消息，而这类消息重试也没用（格式错了不会因为
// requeue就变好），所以既不requeue也不能什么都不做，只能转死信队列。
func (t *Transport) routeMalformed(ctx context.Context, topic string, partition int, body []byte, parseErr error) {
	log.Printf("❌ 信封解析失败，转入死信队列: topic=%s partition=%d err=%v", topic, partition, parseErr)

	t.mu.Lock()
	sink, service := t.dlq, t.dlqService
	t.mu.Unlock()

	if sink == nil {
		log.Printf("⚠️ 未注册死信出口，消息被丢弃: topic=%s partition=%d", topic, partition)
		return
	}

	env := &envelope.Envelope{
		EventID:       uuid.NewString(),
		EventType:     "malformed",
		SchemaVersion: envelope.SchemaVersion,
		PartitionKey:  topic,
		OccurredAt:    time.Now().UTC(),
		Payload:       body,
	}
	if err := sink.Enqueue(ctx, service, fmt.Sprintf("malformed: %v", parseErr), env); err != nil {
		log.Printf("❌ 写入死信队列失败: topic=%s partition=%d err=%v", topic, partition, err)
	}
}

// Delivery 是投递给订阅者的一条消息，必须显式Ack或Nack
type Delivery struct {
	Envelope  *envelope.Envelope
	Partition int
	ack       func()
	nack      func(requeue bool)
}

// Ack 确认消息已成功处理，RabbitMQ将其从队列删除
func (d Delivery) Ack() { d.ack() }

// Nack 标记消息处理失败；requeue=true让消息重新入队（瞬时错误），
// requeue=false由调用方负责把消息写入死信队列后再丢弃原消息
func (d Delivery) Nack(requeue bool) { d.nack(requeue) }

// Handler 处理一条投递消息
type Handler func(ctx context.Context, d Delivery) error

// Subscribe 订阅topic的单个分区，分区内的消息严格按到达顺序串行交给handler
// （Qos prefetch=1，确认/拒绝之后才取下一条），从而保证分区内FIFO。
func (t *Transport) Subscribe(ctx context.Context, topic string, partition, partitionCount int, handler Handler) error {
	if err := t.EnsureTopic(topic, partitionCount); err != nil {
		return err
	}

	ch, err := t.conn.Channel()
	if err != nil {
		return fmt.Errorf("创建Channel失败: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("设置Qos失败: %w", err)
	}

	queueName := partitionQueueName(topic, partition)
	msgs, err := ch.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("开始消费失败: %w", err)
	}

	log.Printf("📥 开始消费: topic=%s partition=%d", topic, partition)

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("消息Channel已关闭: topic=%s partition=%d", topic, partition)
			}

			var env envelope.Envelope
			if err := json.Unmarshal(msg.Body, &env); err != nil {
				t.routeMalformed(ctx, topic, partition, msg.Body, err)
				msg.Nack(false, false)
				continue
			}

			delivery := Delivery{
				Envelope:  &env,
				Partition: partition,
				ack:       func() { msg.Ack(false) },
				nack:      func(requeue bool) { msg.Nack(false, requeue) },
			}

			if err := handler(ctx, delivery); err != nil {
				log.Printf("❌ 消息处理失败 event_id=%s: %v", env.EventID, err)
				msg.Nack(false, true)
				continue
			}
		}
	}
}

// SubscribeAll 为topic的每个分区各起一个goroutine订阅，分区之间并行，
// 分区内部仍然是串行FIFO。阻塞直到ctx被取消或某个分区的Subscribe返回错误。
func (t *Transport) SubscribeAll(ctx context.Context, topic string, partitionCount int, handler Handler) error {
	errCh := make(chan error, partitionCount)
	for p := 0; p < partitionCount; p++ {
		p := p
		go func() {
			errCh <- t.Subscribe(ctx, topic, p, partitionCount, handler)
		}()
	}

	for i := 0; i < partitionCount; i++ {
		if err := <-errCh; err != nil {
			return err
		}
	}
	return nil
}
