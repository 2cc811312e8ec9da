package saga

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	apperrors "github.com/xiebiao/saga-commerce/pkg/errors"
	"github.com/xiebiao/saga-commerce/pkg/envelope"
	"github.com/xiebiao/saga-commerce/pkg/participant"
	"github.com/xiebiao/saga-commerce/services/shipping-service/internal/domain/shipment"
)

// StepCreateShipment是orchestrator端saga_definition.go里登记的步骤名，
// 事件类型是"saga.create_shipment"及其补偿"saga.create_shipment.compensate"
const StepCreateShipment = "create_shipment"

// createShipmentCommandItem与internal/application/order/saga_definition.go里的
// createOrderCommandItem字段一一对应，shipping-service不关心具体商品明细，
// 只需要OrderID/OrderNo生成物流单，字段保留是为了payload结构对齐
type createShipmentCommandItem struct {
	BookID   uint  `json:"book_id"`
	Quantity int   `json:"quantity"`
	Price    int64 `json:"price"`
}

type createShipmentCommand struct {
	OrderID uint                        `json:"order_id"`
	OrderNo string                      `json:"order_no"`
	Items   []createShipmentCommandItem `json:"items"`
}

type cancelShipmentCommand struct {
	OrderID uint   `json:"order_id"`
	OrderNo string `json:"order_no"`
}

// Handlers实现create_shipment步骤的正向/补偿业务逻辑
type Handlers struct {
	repo shipment.Repository
}

func NewHandlers(repo shipment.Repository) *Handlers {
	return &Handlers{repo: repo}
}

// CreateShipment处理"saga.create_shipment"命令，为订单创建物流单。
// 幂等：OrderID上有唯一索引，重复投递直接查到已创建的记录返回成功。
func (h *Handlers) CreateShipment(ctx context.Context, env *envelope.Envelope) (participant.Outcome, error) {
	var cmd createShipmentCommand
	if err := json.Unmarshal(env.Payload, &cmd); err != nil {
		return participant.Outcome{}, fmt.Errorf("解析create_shipment命令失败: %w", err)
	}

	existing, err := h.repo.FindByOrderID(ctx, cmd.OrderID)
	if err != nil && !errors.Is(err, shipment.ErrShipmentNotFound) {
		return participant.Outcome{}, apperrors.TransientStorage(err, "查询物流单失败")
	}
	if existing != nil {
		return participant.Outcome{Success: true}, nil
	}

	s := &shipment.Shipment{
		ShipmentNo: shipment.GenerateShipmentNo(),
		OrderID:    cmd.OrderID,
		Status:     shipment.ShipmentStatusCreated,
	}
	if err := h.repo.Create(ctx, s); err != nil {
		return participant.Outcome{}, apperrors.TransientStorage(err, "创建物流单失败")
	}

	return participant.Outcome{Success: true}, nil
}

// CompensateCreateShipment处理"saga.create_shipment.compensate"补偿命令，
// 取消已创建的物流单。物流单不存在或已处于不可取消状态都视为补偿已完成。
func (h *Handlers) CompensateCreateShipment(ctx context.Context, env *envelope.Envelope) (participant.Outcome, error) {
	var cmd cancelShipmentCommand
	if err := json.Unmarshal(env.Payload, &cmd); err != nil {
		return participant.Outcome{}, fmt.Errorf("解析cancel_shipment命令失败: %w", err)
	}

	s, err := h.repo.FindByOrderID(ctx, cmd.OrderID)
	if err != nil {
		if errors.Is(err, shipment.ErrShipmentNotFound) {
			return participant.Outcome{Success: true}, nil
		}
		return participant.Outcome{}, apperrors.TransientStorage(err, "查询物流单失败")
	}
	if !s.CanCancel() {
		return participant.Outcome{Success: true}, nil
	}

	s.Status = shipment.ShipmentStatusCancelled
	if err := h.repo.Update(ctx, s); err != nil {
		return participant.Outcome{}, apperrors.TransientStorage(err, "取消物流单失败")
	}

	return participant.Outcome{Success: true}, nil
}
