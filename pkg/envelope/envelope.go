// Package envelope 定义跨服务事件信封（Event Envelope）
//
// 信封是outbox/transport/inbox三层之间唯一的数据契约：outbox产出信封，
// transport按routing key路由信封，inbox按event-id去重信封。业务payload
// 本身不关心信封字段，信封字段也不关心payload内部结构（不做二次解析）。
package envelope

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// SchemaVersion 信封payload的schema版本号，随业务事件演进递增
const SchemaVersion = 1

// Envelope 是随事件一起序列化传输的信封，对应spec数据模型中的Event Envelope
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	CorrelationID string          `json:"correlation_id"`
	SchemaVersion int             `json:"schema_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	PartitionKey  string          `json:"partition_key"`
	Payload       json.RawMessage `json:"payload"`
}

// namespaceEventID 是uuid.NewSHA1的固定命名空间，保证同一(correlationID,
// stepName,attempt)三元组在任意进程上都派生出相同的event-id
var namespaceEventID = uuid.NewSHA1(uuid.NameSpaceOID, []byte("saga-commerce.event-id"))

// New 构造一个随机event-id的新信封。payload必须已经是最终要传输的业务载荷，
// 不允许上游在outbox relay阶段再做二次加工（见组件设计§9）。
func New(eventType, correlationID, partitionKey string, payload interface{}) (*Envelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		CorrelationID: correlationID,
		SchemaVersion: SchemaVersion,
		OccurredAt:    time.Now().UTC(),
		PartitionKey:  partitionKey,
		Payload:       body,
	}, nil
}

// NewDeterministic 派生一个确定性event-id：同一个saga步骤被重复执行
// （例如orchestrator在等待回复超时后重发命令）时产出完全相同的event-id，
// 使下游inbox的去重天然生效，而不需要orchestrator自己记账"这是第几次发送"。
func NewDeterministic(eventType, correlationID, stepName string, attempt int, partitionKey string, payload interface{}) (*Envelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	seed := correlationID + "|" + stepName + "|" + strconv.Itoa(attempt)
	return &Envelope{
		EventID:       uuid.NewSHA1(namespaceEventID, []byte(seed)).String(),
		EventType:     eventType,
		CorrelationID: correlationID,
		SchemaVersion: SchemaVersion,
		OccurredAt:    time.Now().UTC(),
		PartitionKey:  partitionKey,
		Payload:       body,
	}, nil
}

// Unmarshal 将信封的payload解码到目标结构体
func (e *Envelope) Unmarshal(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// Checksum 返回payload内容的短哈希，便于日志/追踪中区分同event-type的不同负载
// 而不必把整个payload打进日志
func (e *Envelope) Checksum() string {
	sum := sha1.Sum(e.Payload)
	return hex.EncodeToString(sum[:6])
}
