package order

import (
	"context"
	"fmt"
	"time"

	"github.com/xiebiao/saga-commerce/internal/domain/order"
	"github.com/xiebiao/saga-commerce/internal/infrastructure/grpc_client"
	"github.com/xiebiao/saga-commerce/pkg/saga"
	catalogv1 "github.com/xiebiao/saga-commerce/proto/catalogv1"
)

// CreateOrderUseCase 创建订单用例
//
// 库存扣减、扣款、创建物流单都发生在别的服务里，这里不再用本地事务+悲观锁
// 一次性搞定——而是创建订单记录后把编排工作交给saga.Orchestrator：Start只
// 发出第一条命令(扣减库存)就返回，订单最终是否确认完全由各参与方经由
// outbox/inbox/reply回路异步驱动（见pkg/saga）。图书价格/标题不再读本地
// book表，改成同步调catalog-service（参与方的只读查询走gRPC，不经
// outbox/inbox，那是saga步骤命令的事，见§2数据流）。
type CreateOrderUseCase struct {
	orderRepo      order.Repository
	catalogClient  *grpc_client.CatalogClient
	catalogTimeout time.Duration
	orchestrator   *saga.Orchestrator
}

// NewCreateOrderUseCase 创建下单用例
func NewCreateOrderUseCase(
	orderRepo order.Repository,
	catalogClient *grpc_client.CatalogClient,
	catalogTimeout time.Duration,
	orchestrator *saga.Orchestrator,
) *CreateOrderUseCase {
	return &CreateOrderUseCase{
		orderRepo:      orderRepo,
		catalogClient:  catalogClient,
		catalogTimeout: catalogTimeout,
		orchestrator:   orchestrator,
	}
}

// CreateOrderRequest 下单请求DTO
type CreateOrderRequest struct {
	UserID uint              // 买家用户ID(从JWT中提取)
	Items  []CreateOrderItem // 订单明细
}

// CreateOrderItem 订单明细项
type CreateOrderItem struct {
	BookID   uint // 图书ID
	Quantity int  // 购买数量
}

// CreateOrderResponse 下单响应DTO
//
// Status在saga模型下总是"in_progress"：订单一旦持久化、saga的第一条命令
// 发出去，这个用例就返回了，不等库存/支付/物流任何一步跑完（见§7
// "命令API只在saga落成InProgress后返回"）。订单最终状态通过saga状态
// (或后续的GetOrder查询)才能看到。
type CreateOrderResponse struct {
	OrderID   uint   `json:"order_id"`
	OrderNo   string `json:"order_no"`
	Total     int64  `json:"total"`
	TotalYuan string `json:"total_yuan"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

// Execute 执行下单用例：创建订单记录，然后把履约流程交给saga编排器。
//
// 和旧实现(本地事务+悲观锁一次性扣库存)的区别：
// - 旧实现把库存、订单耦合在同一个数据库事务里，只适合单体部署
// - 新实现里库存属于inventory-service，扣减只能经消息完成；这里只负责
//   用当前价格算总金额、落一行Pending订单，再启动saga
func (uc *CreateOrderUseCase) Execute(ctx context.Context, req CreateOrderRequest) (*CreateOrderResponse, error) {
	if len(req.Items) == 0 {
		return nil, order.ErrInvalidOrderItems
	}

	bookIDs := make([]uint, len(req.Items))
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, order.ErrInvalidQuantity
		}
		bookIDs[i] = item.BookID
	}

	booksResp, err := uc.catalogClient.BatchGetBooks(ctx, bookIDs, uc.catalogTimeout)
	if err != nil {
		return nil, fmt.Errorf("查询图书信息失败: %w", err)
	}
	if booksResp.Code != 0 {
		return nil, fmt.Errorf("查询图书信息失败: %s", booksResp.Message)
	}

	bookMap := make(map[uint]*catalogv1.Book, len(booksResp.Books))
	for _, b := range booksResp.Books {
		bookMap[uint(b.Id)] = b
	}

	var total int64
	orderItems := make([]order.OrderItem, len(req.Items))
	for i, item := range req.Items {
		b, ok := bookMap[item.BookID]
		if !ok {
			return nil, fmt.Errorf("图书[%d]不存在", item.BookID)
		}

		orderItems[i] = order.OrderItem{
			BookID:   item.BookID,
			Quantity: item.Quantity,
			Price:    b.Price, // 使用catalog-service返回的当前价格,而非前端传递的价格
		}
		total += b.Price * int64(item.Quantity)
	}

	orderNo := order.GenerateOrderNo()
	newOrder := order.NewOrder(orderNo, req.UserID, orderItems, total)
	if err := uc.orderRepo.Create(ctx, newOrder); err != nil {
		return nil, err
	}

	sagaItems := make([]map[string]interface{}, len(orderItems))
	for i, item := range orderItems {
		sagaItems[i] = map[string]interface{}{
			"book_id":  item.BookID,
			"quantity": item.Quantity,
			"price":    item.Price,
		}
	}
	sagaContext := map[string]interface{}{
		"order_id": newOrder.ID,
		"order_no": newOrder.OrderNo,
		"user_id":  newOrder.UserID,
		"total":    newOrder.Total,
		"items":    sagaItems,
	}
	if err := uc.orchestrator.Start(ctx, newOrder.OrderNo, "create_order", newOrder.OrderNo, sagaContext); err != nil {
		return nil, fmt.Errorf("启动订单saga失败: %w", err)
	}

	return &CreateOrderResponse{
		OrderID:   newOrder.ID,
		OrderNo:   newOrder.OrderNo,
		Total:     newOrder.Total,
		TotalYuan: formatPrice(newOrder.Total),
		Status:    "in_progress",
		CreatedAt: newOrder.CreatedAt.Format("2006-01-02 15:04:05"),
	}, nil
}

// formatPrice 格式化价格(分→元)
func formatPrice(priceFen int64) string {
	yuan := float64(priceFen) / 100.0
	return fmt.Sprintf("%.2f", yuan)
}
