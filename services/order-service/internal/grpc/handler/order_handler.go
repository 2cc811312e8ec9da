package handler

import (
	"context"
	"fmt"
	"log"
	"time"

	orderv1 "github.com/xiebiao/saga-commerce/proto/orderv1"
	"github.com/xiebiao/saga-commerce/services/order-service/internal/domain/order"
	"github.com/xiebiao/saga-commerce/services/order-service/internal/infrastructure/config"
	"github.com/xiebiao/saga-commerce/services/order-service/internal/infrastructure/grpc_client"
	redisStore "github.com/xiebiao/saga-commerce/services/order-service/internal/infrastructure/persistence/redis"
)

// OrderServiceServer gRPC服务实现
type OrderServiceServer struct {
	orderv1.UnimplementedOrderServiceServer
	repo            order.Repository
	cache           redisStore.OrderCache
	inventoryClient *grpc_client.InventoryClient
	catalogClient   *grpc_client.CatalogClient
	cfg             *config.Config
}

func NewOrderServiceServer(
	repo order.Repository,
	cache redisStore.OrderCache,
	inventoryClient *grpc_client.InventoryClient,
	catalogClient *grpc_client.CatalogClient,
	cfg *config.Config,
) *OrderServiceServer {
	return &OrderServiceServer{
		repo:            repo,
		cache:           cache,
		inventoryClient: inventoryClient,
		catalogClient:   catalogClient,
		cfg:             cfg,
	}
}

// CreateOrder 创建订单
//
// 这个服务自己的orders表和Redis待支付队列，是它自己这个有界上下文的本地
// 状态——不是order_service saga_definition.go（命令API里的create_order saga）
// 写的那张表。跨服务的履约编排（扣库存/扣款/发货）现在完全交给命令API的
// saga.Orchestrator经outbox/inbox异步驱动，不再适合塞进一个同步gRPC调用
// 里；这里保留的，是这个服务自己职责内、确实只涉及"查图书价格→扣库存→
// 落本地订单行→进待支付队列"这条短链路，仍然同步执行，失败则按相反顺序
// 手动回滚——用的是调用顺序本身做补偿栈，不再依赖已经被通用化的
// pkg/saga.Orchestrator（那是为跨服务异步场景设计的，强行套在这里只会
// 多一层不必要的状态持久化）。
func (s *OrderServiceServer) CreateOrder(ctx context.Context, req *orderv1.CreateOrderRequest) (*orderv1.CreateOrderResponse, error) {
	if err := s.validateCreateOrderRequest(req); err != nil {
		return &orderv1.CreateOrderResponse{Code: 40000, Message: err.Error()}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// 步骤1：查询图书信息，构建订单明细
	orderItems := make([]order.OrderItem, 0, len(req.Items))
	var total int64
	for _, item := range req.Items {
		bookResp, err := s.catalogClient.GetBook(ctx, uint(item.BookId), s.cfg.GetServiceTimeout("catalog"))
		if err != nil || bookResp.Code != 0 {
			return &orderv1.CreateOrderResponse{Code: 40400, Message: fmt.Sprintf("图书[%d]不存在", item.BookId)}, nil
		}
		orderItem := order.OrderItem{
			BookID:    uint(item.BookId),
			BookTitle: bookResp.Book.Title,
			Quantity:  int(item.Quantity),
			Price:     bookResp.Book.Price,
		}
		orderItems = append(orderItems, orderItem)
		total += int64(orderItem.Quantity) * orderItem.Price
	}

	// 步骤2：扣减库存，记录已扣减的，供失败时回滚
	deducted := make([]order.OrderItem, 0, len(orderItems))
	releaseDeducted := func() {
		for i := len(deducted) - 1; i >= 0; i-- {
			item := deducted[i]
			if _, err := s.inventoryClient.ReleaseStock(ctx, item.BookID, item.Quantity, 0, s.cfg.GetServiceTimeout("inventory")); err != nil {
				log.Printf("⚠️ 释放库存失败[图书:%d]: %v", item.BookID, err)
			}
		}
	}
	for _, item := range orderItems {
		resp, err := s.inventoryClient.DeductStock(ctx, item.BookID, item.Quantity, 0, s.cfg.GetServiceTimeout("inventory"))
		if err != nil || resp.Code != 0 {
			releaseDeducted()
			return &orderv1.CreateOrderResponse{Code: 50000, Message: fmt.Sprintf("库存不足[图书:%d]", item.BookID)}, nil
		}
		deducted = append(deducted, item)
	}

	// 步骤3：落本地订单行
	newOrder := &order.Order{
		OrderNo: order.GenerateOrderNo(),
		UserID:  uint(req.UserId),
		Status:  order.OrderStatusPending,
		Total:   total,
		Items:   orderItems,
	}
	if err := s.repo.Create(ctx, newOrder); err != nil {
		releaseDeducted()
		return &orderv1.CreateOrderResponse{Code: 50000, Message: fmt.Sprintf("创建订单失败: %v", err)}, nil
	}

	// 步骤4：加入待支付队列（超时取消扫描见cmd/main.go的startOrderTimeoutTask）
	expireAt := time.Now().Add(time.Duration(s.cfg.Order.PaymentTimeout) * time.Minute)
	if err := s.cache.SetPendingOrder(ctx, newOrder.ID, expireAt); err != nil {
		releaseDeducted()
		if uerr := newOrder.UpdateStatus(order.OrderStatusCancelled); uerr == nil {
			if uerr := s.repo.Update(ctx, newOrder); uerr != nil {
				log.Printf("⚠️ 取消订单失败[订单:%s]: %v", newOrder.OrderNo, uerr)
			}
		}
		return &orderv1.CreateOrderResponse{Code: 50000, Message: fmt.Sprintf("添加到待支付队列失败: %v", err)}, nil
	}

	log.Printf("✅ 订单创建成功: %s", newOrder.OrderNo)
	return &orderv1.CreateOrderResponse{
		Code:    0,
		Message: "订单创建成功",
		OrderNo: newOrder.OrderNo,
		OrderId: uint64(newOrder.ID),
		Total:   newOrder.Total,
	}, nil
}

// validateCreateOrderRequest 校验创建订单请求
func (s *OrderServiceServer) validateCreateOrderRequest(req *orderv1.CreateOrderRequest) error {
	if req.UserId == 0 {
		return fmt.Errorf("用户ID不能为空")
	}
	if len(req.Items) == 0 {
		return fmt.Errorf("订单明细不能为空")
	}
	for _, item := range req.Items {
		if item.BookId == 0 {
			return fmt.Errorf("图书ID不能为空")
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("数量必须大于0")
		}
	}
	return nil
}

func (s *OrderServiceServer) GetOrder(ctx context.Context, req *orderv1.GetOrderRequest) (*orderv1.GetOrderResponse, error) {
	if req.OrderId == 0 {
		return &orderv1.GetOrderResponse{Code: 40000, Message: "订单ID不能为空"}, nil
	}

	orderEntity, err := s.repo.FindByID(ctx, uint(req.OrderId))
	if err != nil {
		return &orderv1.GetOrderResponse{Code: 40400, Message: "订单不存在"}, nil
	}

	items := make([]*orderv1.OrderItemDetail, 0, len(orderEntity.Items))
	for _, item := range orderEntity.Items {
		items = append(items, &orderv1.OrderItemDetail{
			Id:        uint64(item.ID),
			OrderId:   uint64(item.OrderID),
			BookId:    uint64(item.BookID),
			BookTitle: item.BookTitle,
			Quantity:  int32(item.Quantity),
			Price:     item.Price,
		})
	}

	return &orderv1.GetOrderResponse{
		Code: 0,
		Order: &orderv1.Order{
			Id:      uint64(orderEntity.ID),
			OrderNo: orderEntity.OrderNo,
			UserId:  uint64(orderEntity.UserID),
			Total:   orderEntity.Total,
			Status:  int32(orderEntity.Status),
			Items:   items,
		},
	}, nil
}
