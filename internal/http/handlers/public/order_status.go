package public

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/aicover-pay/internal/http/response"
	"github.com/aicover-pay/internal/service"

	"github.com/gin-gonic/gin"
)

// GetWechatOrderStatus 查询订单支付状态
func (h *Handler) GetWechatOrderStatus(c *gin.Context) {
	orderNo := strings.TrimSpace(c.Query("order_no"))
	status, err := h.OrderStatusService.GetStatus(c.Request.Context(), orderNo)
	if err != nil {
		respondWithMappedError(c, err, orderStatusErrorRules, response.CodeInternal, msgOrderStatusFailed)
		return
	}
	response.Success(c, status)
}

// WaitWechatOrderStatus 长轮询等待订单支付，超时返回最后一次状态
func (h *Handler) WaitWechatOrderStatus(c *gin.Context) {
	orderNo := strings.TrimSpace(c.Query("order_no"))
	var timeout time.Duration
	if raw := strings.TrimSpace(c.Query("timeout_seconds")); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds < 0 {
			respondError(c, response.CodeBadRequest, msgInvalidParams, nil)
			return
		}
		timeout = time.Duration(seconds) * time.Second
	}

	status, err := h.OrderStatusService.WaitPaid(c.Request.Context(), orderNo, 0, timeout)
	switch {
	case err == nil, errors.Is(err, service.ErrPollTimeout):
		response.Success(c, status)
	case errors.Is(err, context.Canceled):
		requestLog(c).Debugw("order_status_wait_client_gone", "order_no", orderNo)
	default:
		respondWithMappedError(c, err, orderStatusErrorRules, response.CodeInternal, msgOrderStatusFailed)
	}
}
