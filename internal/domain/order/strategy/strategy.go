package strategy

// PaymentStrategy 支付渠道抽象
type PaymentStrategy interface {
	// Pay 发起支付，返回支付参数（如 URL、JSON 串）。
	// orderID 用作渠道侧的商户订单号
	Pay(orderID string, amountUSD float64, subject string) (string, error)

	// Notify 处理回调通知，返回解析后的订单ID、金额、支付状态
	Notify(params interface{}) (string, float64, bool, error)
}
