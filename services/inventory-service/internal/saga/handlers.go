// Package saga把inventory-service接入订单saga的命令流：reserve_inventory
// 的执行和补偿都落在这里，复用grpc/handler里同一套Redis优先、MySQL异步同步
// 的双存储写路径，只是触发源从gRPC请求换成了inbox派发的命令事件。
package saga

import (
	"context"
	"fmt"

	"github.com/xiebiao/saga-commerce/pkg/envelope"
	apperrors "github.com/xiebiao/saga-commerce/pkg/errors"
	"github.com/xiebiao/saga-commerce/pkg/participant"
	"github.com/xiebiao/saga-commerce/services/inventory-service/internal/domain/inventory"
	"github.com/xiebiao/saga-commerce/services/inventory-service/internal/infrastructure/persistence/redis"
)

// StepReserveInventory是orchestrator静态注册表里该服务要处理的步骤名，
// 对应事件类型"saga.reserve_inventory"(执行)和
// "saga.reserve_inventory.compensate"(补偿)。
const StepReserveInventory = "reserve_inventory"

// orderCommandItem是saga命令payload里的一条订单明细，字段需要和
// internal/application/order/saga_definition.go里的createOrderCommandItem
// 保持同一套JSON tag——两个服务不共享Go类型，只靠payload约定对齐。
type orderCommandItem struct {
	BookID   uint  `json:"book_id"`
	Quantity int   `json:"quantity"`
	Price    int64 `json:"price"`
}

type reserveInventoryCommand struct {
	OrderID uint               `json:"order_id"`
	OrderNo string             `json:"order_no"`
	Items   []orderCommandItem `json:"items"`
}

type releaseInventoryCommand struct {
	OrderID uint               `json:"order_id"`
	OrderNo string             `json:"order_no"`
	Items   []orderCommandItem `json:"items"`
}

// Handlers把库存仓储/Redis存储适配成participant.BusinessHandler
type Handlers struct {
	repo  inventory.Repository
	store *redis.InventoryStore
}

// NewHandlers 创建库存saga命令处理器
func NewHandlers(repo inventory.Repository, store *redis.InventoryStore) *Handlers {
	return &Handlers{repo: repo, store: store}
}

// ReserveInventory处理reserve_inventory命令：对每条明细调用Redis的Lua扣减
// 脚本，任何一条库存不足都需要把本次已经成功扣减的明细立刻释放回去，
// 整体当作业务拒绝（Outcome.Success=false）回复给orchestrator，由它驱动
// 逆序补偿；Redis本身的错误才当基础设施故障向上抛，交给inbox重试。
func (h *Handlers) ReserveInventory(ctx context.Context, env *envelope.Envelope) (participant.Outcome, error) {
	var cmd reserveInventoryCommand
	if err := env.Unmarshal(&cmd); err != nil {
		return participant.Outcome{}, apperrors.Malformed(err, "reserve_inventory命令payload解析失败")
	}

	deducted := make([]orderCommandItem, 0, len(cmd.Items))
	for _, item := range cmd.Items {
		code, err := h.store.DeductStock(ctx, item.BookID, item.Quantity, cmd.OrderID)
		if err != nil {
			h.rollback(ctx, cmd.OrderID, deducted)
			return participant.Outcome{}, apperrors.TransientStorage(err, "扣减库存失败")
		}

		switch code {
		case 0:
			// 库存不足：回滚本次已扣减的明细，按业务拒绝回复
			h.rollback(ctx, cmd.OrderID, deducted)
			return participant.Outcome{
				Success: false,
				Reason:  fmt.Sprintf("图书[%d]库存不足", item.BookID),
			}, nil
		case 1:
			deducted = append(deducted, item)
			h.syncDeductAsync(item.BookID, item.Quantity, cmd.OrderID)
		case 2:
			// 重复扣减（幂等）：inbox已经按event_id去重，这里命中说明Redis记录
			// 先于inbox登记完成后又被redelivery——直接当成功处理，不重复计入deducted
		default:
			h.rollback(ctx, cmd.OrderID, deducted)
			return participant.Outcome{}, apperrors.Unrecoverable(nil, fmt.Sprintf("扣减库存脚本返回未知状态码: %d", code))
		}
	}

	return participant.Outcome{Success: true}, nil
}

// CompensateReserveInventory处理reserve_inventory的补偿命令：把已扣减的库存
// 释放回去。补偿本身不应该再出现"库存不足"这类业务拒绝——失败只可能是
// 基础设施性的，交给inbox按重试策略处理。
func (h *Handlers) CompensateReserveInventory(ctx context.Context, env *envelope.Envelope) (participant.Outcome, error) {
	var cmd releaseInventoryCommand
	if err := env.Unmarshal(&cmd); err != nil {
		return participant.Outcome{}, apperrors.Malformed(err, "release_inventory命令payload解析失败")
	}

	for _, item := range cmd.Items {
		if _, err := h.store.ReleaseStock(ctx, item.BookID, item.Quantity, cmd.OrderID); err != nil {
			return participant.Outcome{}, apperrors.TransientStorage(err, "释放库存失败")
		}
		h.syncReleaseAsync(item.BookID, item.Quantity, cmd.OrderID)
	}

	return participant.Outcome{Success: true}, nil
}

func (h *Handlers) rollback(ctx context.Context, orderID uint, deducted []orderCommandItem) {
	for _, item := range deducted {
		if _, err := h.store.ReleaseStock(ctx, item.BookID, item.Quantity, orderID); err != nil {
			continue
		}
		h.syncReleaseAsync(item.BookID, item.Quantity, orderID)
	}
}

// syncDeductAsync/syncReleaseAsync异步同步到MySQL，和grpc/handler里
// DeductStock/ReleaseStock的持久化策略完全一致：Redis是实时来源，MySQL
// 只用来对账，同步失败不影响本次saga步骤的结果。
func (h *Handlers) syncDeductAsync(bookID uint, quantity int, orderID uint) {
	go func() {
		_ = h.repo.DeductStock(context.Background(), bookID, quantity, orderID)
	}()
}

func (h *Handlers) syncReleaseAsync(bookID uint, quantity int, orderID uint) {
	go func() {
		_ = h.repo.ReleaseStock(context.Background(), bookID, quantity, orderID, "saga补偿释放")
	}()
}
