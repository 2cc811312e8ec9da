// Package inbox 实现幂等收件箱（Idempotent Inbox）
//
// Transport按at-least-once语义投递，同一个事件可能被redelivery多次（消费者崩溃、
// Nack重试、网络抖动都会触发）。收件箱按event_id做一次性登记：第一次看到某个
// event_id时才真正调用业务handler，之后重复投递直接跳过，天然吸收重复。
//
// 静态事件类型→handler注册表代替反射分发（见组件设计关于dispatch的说明）：
// 新增一种事件类型只需要Registry.Register一次，出了问题能直接在代码里grep到
// 处理函数，而不是靠运行时反射猜。
package inbox

import (
	"context"
	"time"

	"github.com/xiebiao/saga-commerce/pkg/envelope"
)

// Status 收件箱登记行的处理结果
type Status string

const (
	StatusProcessed Status = "processed"
	StatusFailed    Status = "failed"
)

// Entry 对应inbox_messages表的一行，记录"这个event_id已经被这个服务处理过"
type Entry struct {
	EventID       string `gorm:"primaryKey;size:64"`
	EventType     string `gorm:"size:128;index"`
	CorrelationID string `gorm:"size:64;index"`
	Status        Status `gorm:"size:16"`
	Attempts      int
	MaxAttempts   int
	LastError     string `gorm:"size:512"`
	ReceivedAt    time.Time
	ProcessedAt   *time.Time
}

// TableName 固定表名
func (Entry) TableName() string { return "inbox_messages" }

// HandlerFunc 处理一个事件的业务负载；收到的是已经去重过的信封
type HandlerFunc func(ctx context.Context, env *envelope.Envelope) error

// Registry 是event_type到HandlerFunc的静态映射
type Registry struct {
	handlers map[string]HandlerFunc
}

// NewRegistry 创建一个空的静态事件处理器注册表
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]HandlerFunc)}
}

// Register 注册某个事件类型的处理函数；同一事件类型重复注册视为编程错误，直接panic
// （这是启动期配置错误，不是运行时可恢复的情况）
func (r *Registry) Register(eventType string, handler HandlerFunc) {
	if _, exists := r.handlers[eventType]; exists {
		panic("inbox: duplicate handler registration for event type " + eventType)
	}
	r.handlers[eventType] = handler
}

// Lookup 返回某个事件类型对应的handler，ok=false表示没有注册处理器
// （未知事件类型默认被视为malformed/unrecoverable，而不是静默忽略）
func (r *Registry) Lookup(eventType string) (HandlerFunc, bool) {
	h, ok := r.handlers[eventType]
	return h, ok
}
