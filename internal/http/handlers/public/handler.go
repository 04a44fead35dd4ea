package public

import "github.com/aicover-pay/internal/provider"

// Handler 前台/公开接口处理器入口
// 说明：下单、状态查询、支付回调与用户积分接口共用。
type Handler struct {
	*provider.Container
}

// New 创建前台处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}
