package order

import (
	"context"
	"fmt"

	"github.com/xiebiao/saga-commerce/pkg/saga"
)

// 三个saga步骤对应三个参与方服务(inventory-service/payment-service/
// shipping-service)，命令经各自的commands topic发出，compensation topic与
// 命令topic共用(参与方按event-type区分"执行"和"补偿")。
const (
	topicInventoryCommands  = "inventory.commands"
	topicPaymentCommands    = "payment.commands"
	topicShippingCommands   = "shipping.commands"
	topicNotificationEvents = "notification.events"
)

// orderNotificationEvent是order.order_confirmed/order.order_cancelled的payload，
// notification-service只读这两个字段就够了，不需要完整的订单上下文
type orderNotificationEvent struct {
	OrderID uint   `json:"order_id"`
	OrderNo string `json:"order_no"`
}

// sagaItem是saga业务上下文里一条订单明细的JSON形状。上下文整体存成
// map[string]interface{}，items字段解码后是[]interface{}，取值时需要逐个
// 做类型断言——staticStepDef的BuildCommand不能假设具体Go类型，因为这份
// 上下文是从数据库里的JSON反序列化回来的（恢复worker重建saga时也一样）。
type sagaItem struct {
	BookID   uint
	Quantity int
	Price    int64
}

func decodeItems(sagaContext map[string]interface{}) ([]sagaItem, error) {
	raw, ok := sagaContext["items"].([]interface{})
	if !ok {
		return nil, fmt.Errorf("saga上下文缺少items字段")
	}
	items := make([]sagaItem, 0, len(raw))
	for _, v := range raw {
		m, ok := v.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("items条目格式不合法")
		}
		items = append(items, sagaItem{
			BookID:   uint(toFloat(m["book_id"])),
			Quantity: int(toFloat(m["quantity"])),
			Price:    int64(toFloat(m["price"])),
		})
	}
	return items, nil
}

// toFloat JSON数字统一解码为float64，这里做一次集中转换
func toFloat(v interface{}) float64 {
	f, _ := v.(float64)
	return f
}

// createOrderCommand是发给inventory/shipping-service的命令payload
type createOrderCommand struct {
	OrderID uint                     `json:"order_id"`
	OrderNo string                   `json:"order_no"`
	Items   []createOrderCommandItem `json:"items"`
}

type createOrderCommandItem struct {
	BookID   uint  `json:"book_id"`
	Quantity int   `json:"quantity"`
	Price    int64 `json:"price"`
}

// chargePaymentCommand是发给payment-service的命令payload
type chargePaymentCommand struct {
	OrderID uint   `json:"order_id"`
	OrderNo string `json:"order_no"`
	UserID  uint   `json:"user_id"`
	Amount  int64  `json:"amount"`
}

// releaseInventoryCommand是reserve_inventory的补偿命令payload
type releaseInventoryCommand struct {
	OrderID uint                     `json:"order_id"`
	OrderNo string                   `json:"order_no"`
	Items   []createOrderCommandItem `json:"items"`
}

// refundPaymentCommand是charge_payment的补偿命令payload
type refundPaymentCommand struct {
	OrderID uint   `json:"order_id"`
	OrderNo string `json:"order_no"`
	Amount  int64  `json:"amount"`
}

// cancelShipmentCommand是create_shipment的补偿命令payload
type cancelShipmentCommand struct {
	OrderID uint   `json:"order_id"`
	OrderNo string `json:"order_no"`
}

// NewCreateOrderSagaDefinition构造"create_order"这一类saga的静态步骤定义，
// 进程启动时注册一次(见wire.go)。三步对应S1场景: 扣减库存→扣款→创建物流单，
// 任一步失败都从失败点前一步开始逆序补偿。
func NewCreateOrderSagaDefinition() *saga.Definition {
	return &saga.Definition{
		Type: "create_order",
		Steps: []saga.StepDef{
			{
				Name:  "reserve_inventory",
				Topic: topicInventoryCommands,
				BuildCommand: func(ctx context.Context, sagaContext map[string]interface{}) (interface{}, string, error) {
					orderNo, _ := sagaContext["order_no"].(string)
					orderID := uint(toFloat(sagaContext["order_id"]))
					items, err := decodeItems(sagaContext)
					if err != nil {
						return nil, "", err
					}
					cmdItems := make([]createOrderCommandItem, len(items))
					for i, it := range items {
						cmdItems[i] = createOrderCommandItem{BookID: it.BookID, Quantity: it.Quantity, Price: it.Price}
					}
					return createOrderCommand{OrderID: orderID, OrderNo: orderNo, Items: cmdItems}, orderNo, nil
				},
				CompensationTopic: topicInventoryCommands,
				BuildCompensation: func(ctx context.Context, sagaContext map[string]interface{}) (interface{}, string, error) {
					orderNo, _ := sagaContext["order_no"].(string)
					orderID := uint(toFloat(sagaContext["order_id"]))
					items, err := decodeItems(sagaContext)
					if err != nil {
						return nil, "", err
					}
					cmdItems := make([]createOrderCommandItem, len(items))
					for i, it := range items {
						cmdItems[i] = createOrderCommandItem{BookID: it.BookID, Quantity: it.Quantity, Price: it.Price}
					}
					return releaseInventoryCommand{OrderID: orderID, OrderNo: orderNo, Items: cmdItems}, orderNo, nil
				},
			},
			{
				Name:  "charge_payment",
				Topic: topicPaymentCommands,
				BuildCommand: func(ctx context.Context, sagaContext map[string]interface{}) (interface{}, string, error) {
					orderNo, _ := sagaContext["order_no"].(string)
					orderID := uint(toFloat(sagaContext["order_id"]))
					userID := uint(toFloat(sagaContext["user_id"]))
					total := int64(toFloat(sagaContext["total"]))
					return chargePaymentCommand{OrderID: orderID, OrderNo: orderNo, UserID: userID, Amount: total}, orderNo, nil
				},
				CompensationTopic: topicPaymentCommands,
				BuildCompensation: func(ctx context.Context, sagaContext map[string]interface{}) (interface{}, string, error) {
					orderNo, _ := sagaContext["order_no"].(string)
					orderID := uint(toFloat(sagaContext["order_id"]))
					total := int64(toFloat(sagaContext["total"]))
					return refundPaymentCommand{OrderID: orderID, OrderNo: orderNo, Amount: total}, orderNo, nil
				},
			},
			{
				Name:  "create_shipment",
				Topic: topicShippingCommands,
				BuildCommand: func(ctx context.Context, sagaContext map[string]interface{}) (interface{}, string, error) {
					orderNo, _ := sagaContext["order_no"].(string)
					orderID := uint(toFloat(sagaContext["order_id"]))
					items, err := decodeItems(sagaContext)
					if err != nil {
						return nil, "", err
					}
					cmdItems := make([]createOrderCommandItem, len(items))
					for i, it := range items {
						cmdItems[i] = createOrderCommandItem{BookID: it.BookID, Quantity: it.Quantity, Price: it.Price}
					}
					return createOrderCommand{OrderID: orderID, OrderNo: orderNo, Items: cmdItems}, orderNo, nil
				},
				CompensationTopic: topicShippingCommands,
				BuildCompensation: func(ctx context.Context, sagaContext map[string]interface{}) (interface{}, string, error) {
					orderNo, _ := sagaContext["order_no"].(string)
					orderID := uint(toFloat(sagaContext["order_id"]))
					return cancelShipmentCommand{OrderID: orderID, OrderNo: orderNo}, orderNo, nil
				},
			},
		},
		NotificationTopic: topicNotificationEvents,
		BuildConfirmedEvent: func(ctx context.Context, sagaContext map[string]interface{}) (interface{}, string, error) {
			orderNo, _ := sagaContext["order_no"].(string)
			orderID := uint(toFloat(sagaContext["order_id"]))
			return orderNotificationEvent{OrderID: orderID, OrderNo: orderNo}, orderNo, nil
		},
		BuildCancelledEvent: func(ctx context.Context, sagaContext map[string]interface{}) (interface{}, string, error) {
			orderNo, _ := sagaContext["order_no"].(string)
			orderID := uint(toFloat(sagaContext["order_id"]))
			return orderNotificationEvent{OrderID: orderID, OrderNo: orderNo}, orderNo, nil
		},
	}
}
