package saga

import (
	"context"

	"github.com/xiebiao/saga-commerce/pkg/envelope"
)

// replyPayload是saga.reply事件的payload形状，字段与pkg/participant.ReplyPayload
// 保持一致但故意不共享类型——参与方不反过来依赖pkg/saga，两边只靠JSON字段约定
// 解耦（参与方甚至可以用别的语言实现，只要发出同样形状的payload）。
type replyPayload struct {
	StepName string                 `json:"step_name"`
	Success  bool                   `json:"success"`
	Output   map[string]interface{} `json:"output,omitempty"`
	Reason   string                 `json:"reason,omitempty"`
}

// HandleReplyEnvelope把一条已经去重过的reply topic事件转换成OnReply调用，
// 注册到inbox.Registry里作为"saga.reply"事件类型的handler
func (o *Orchestrator) HandleReplyEnvelope(ctx context.Context, env *envelope.Envelope) error {
	var payload replyPayload
	if err := env.Unmarshal(&payload); err != nil {
		return err
	}
	return o.OnReply(ctx, env.CorrelationID, payload.StepName, StepResult{
		Success: payload.Success,
		Output:  payload.Output,
		Err:     payload.Reason,
	})
}
