package shipment

import (
	"fmt"
	"math/rand"
	"time"
)

// GenerateShipmentNo 生成物流单号
//
// 格式：SHP + YYYYMMDDHHMMSS + 6位随机数，和payment-service的
// GeneratePaymentNo是同一套生成规则
func GenerateShipmentNo() string {
	now := time.Now()
	timePart := now.Format("20060102150405")
	randomPart := rand.Intn(900000) + 100000
	return fmt.Sprintf("SHP%s%d", timePart, randomPart)
}
