package constants

// 订单状态常量，只允许 pending -> paid 单向流转
const (
	OrderStatusPending = 1
	OrderStatusPaid    = 2
)

// 订单套餐常量
const (
	PlanOneTime = "one-time"
	PlanMonthly = "monthly"
)

// 支付提供方常量
const (
	PaymentProviderYunGouOS  = "yungouos"
	PaymentProviderStripe    = "stripe"
	PaymentProviderWechatPay = "wechatpay"
)

// 返回给前端的支付类型
const (
	PaymentTypeWechat = "wechat"
	PaymentTypeStripe = "stripe"
)

// 签名拼接方式
const (
	SignVariantSorted = "sorted"
	SignVariantFixed  = "fixed"
)

// 支付路由兜底键
const PaymentRouteDefault = "default"

// YunGouOS 回调应答
const (
	YunGouOSCallbackSuccess = "SUCCESS"
	YunGouOSCallbackFail    = "FAIL"
)

// YunGouOS 支付结果码，1 表示成功
const YunGouOSPayCodeSuccess = "1"

// 微信支付 v3 回调应答码
const (
	WechatPayCallbackSuccess = "SUCCESS"
	WechatPayCallbackFail    = "FAIL"
)

// 队列相关常量
const (
	QueueDefault  = "default"
	TaskOrderPaid = "order:paid"
)

// 上下文键
const (
	ContextKeyUserEmail = "user_email"
	ContextKeyRequestID = "request_id"
)
