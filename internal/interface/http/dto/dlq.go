package dto

import "time"

// DeadLetterEntry HTTP死信记录响应
type DeadLetterEntry struct {
	ID            uint64 `json:"id" example:"1"`
	EventID       string `json:"event_id"`
	EventType     string `json:"event_type" example:"saga.charge_payment"`
	CorrelationID string `json:"correlation_id"`
	Service       string `json:"service" example:"payment-service"`
	Reason        string `json:"reason"`
	OperatorNote  string `json:"operator_note"`
	Reprocessed   bool   `json:"reprocessed"`
	MovedAt       string `json:"moved_at" example:"2024-11-06 10:30:00"`
}

// ListDeadLettersRequest HTTP死信列表查询请求
type ListDeadLettersRequest struct {
	Service string `form:"service" binding:"omitempty,max=64" example:"payment-service"`
	Limit   int    `form:"limit" binding:"omitempty,min=1,max=200" example:"50"`
}

// ListDeadLettersResponse HTTP死信列表响应
type ListDeadLettersResponse struct {
	List  []DeadLetterEntry `json:"list"`
	Total int               `json:"total" example:"3"`
}

// AddOperatorNoteRequest HTTP死信备注请求
type AddOperatorNoteRequest struct {
	Note string `json:"note" binding:"required,max=1024" example:"已确认下游依赖恢复，可重新投递"`
}

// ReprocessDeadLetterRequest HTTP死信重新投递请求
// Topic由operator显式指定：死信记录横跨多个服务的多个topic，Store本身不替
// operator判断"原来是发到哪个topic的"，这个决定必须由人来做
type ReprocessDeadLetterRequest struct {
	Topic          string `json:"topic" binding:"required,max=128" example:"payment.commands"`
	PartitionCount int    `json:"partition_count" binding:"omitempty,min=1" example:"4"`
}

func formatMovedAt(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}

// ToDeadLetterEntry 把dlq.Entry转换为HTTP响应DTO
// 放在dto包是为了避免handler包直接依赖pkg/dlq的持久化细节(Payload等内部字段不对外暴露)
func ToDeadLetterEntry(id uint64, eventID, eventType, correlationID, service, reason, operatorNote string, reprocessed bool, movedAt time.Time) DeadLetterEntry {
	return DeadLetterEntry{
		ID:            id,
		EventID:       eventID,
		EventType:     eventType,
		CorrelationID: correlationID,
		Service:       service,
		Reason:        reason,
		OperatorNote:  operatorNote,
		Reprocessed:   reprocessed,
		MovedAt:       formatMovedAt(movedAt),
	}
}
