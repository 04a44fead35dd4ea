package public

import (
	"strconv"
	"strings"

	handlershared "github.com/aicover-pay/internal/http/handlers/shared"
	"github.com/aicover-pay/internal/http/response"

	"github.com/gin-gonic/gin"
)

// GetMyCredits 当前用户积分汇总
func (h *Handler) GetMyCredits(c *gin.Context) {
	email, ok := handlershared.GetUserEmail(c)
	if !ok {
		response.NoAuth(c)
		return
	}
	summary, err := h.CreditService.GetSummary(c.Request.Context(), email)
	if err != nil {
		respondWithMappedError(c, err, userErrorRules, response.CodeInternal, msgCreditsQueryFailed)
		return
	}
	response.Success(c, summary)
}

// ListMyOrders 当前用户订单列表
func (h *Handler) ListMyOrders(c *gin.Context) {
	email, ok := handlershared.GetUserEmail(c)
	if !ok {
		response.NoAuth(c)
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	orders, err := h.CreditService.ListOrders(email, limit)
	if err != nil {
		respondWithMappedError(c, err, userErrorRules, response.CodeInternal, msgOrdersQueryFailed)
		return
	}
	response.Success(c, orders)
}

// GetMyOrder 当前用户订单详情
func (h *Handler) GetMyOrder(c *gin.Context) {
	email, ok := handlershared.GetUserEmail(c)
	if !ok {
		response.NoAuth(c)
		return
	}
	order, err := h.CreditService.GetOrder(email, c.Param("order_no"))
	if err != nil {
		respondWithMappedError(c, err, concatMappedHandlerErrors(userErrorRules, orderStatusErrorRules), response.CodeInternal, msgOrdersQueryFailed)
		return
	}
	response.Success(c, order)
}

// ConsumeCreditsRequest 积分消耗请求
type ConsumeCreditsRequest struct {
	Credits int    `json:"credits"`
	Reason  string `json:"reason"`
}

// ConsumeMyCredits 扣减当前用户积分，余额不足时拒绝
func (h *Handler) ConsumeMyCredits(c *gin.Context) {
	email, ok := handlershared.GetUserEmail(c)
	if !ok {
		response.NoAuth(c)
		return
	}
	var req ConsumeCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Credits <= 0 {
		respondError(c, response.CodeBadRequest, msgInvalidParams, nil)
		return
	}
	summary, err := h.CreditService.Consume(c.Request.Context(), email, req.Credits, strings.TrimSpace(req.Reason))
	if err != nil {
		respondWithMappedError(c, err, concatMappedHandlerErrors(userErrorRules, creditConsumeErrorRules), response.CodeInternal, msgCreditsConsumeFailed)
		return
	}
	response.Success(c, summary)
}
