package shipment

import "errors"

var (
	ErrShipmentNotFound      = errors.New("物流单不存在")
	ErrAlreadyShipped        = errors.New("订单已创建物流单")
	ErrShipmentNotCancelable = errors.New("物流单不可取消")
)
