package public

import (
	"errors"
	"strings"

	"github.com/aicover-pay/internal/constants"
	handlershared "github.com/aicover-pay/internal/http/handlers/shared"
	"github.com/aicover-pay/internal/http/response"
	"github.com/aicover-pay/internal/service"

	"github.com/gin-gonic/gin"
)

// CheckoutRequest 下单请求体，amount 为最小货币单位
type CheckoutRequest struct {
	PriceID   string `json:"priceId"`
	Plan      string `json:"plan"`
	Credits   int    `json:"credits"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	ReturnURL string `json:"return_url"`
}

// Checkout 创建积分订单并返回支付二维码或收银台会话
func (h *Handler) Checkout(c *gin.Context) {
	email, ok := handlershared.GetUserEmail(c)
	if !ok {
		response.NoAuth(c)
		return
	}
	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		requestLog(c).Debugw("checkout_bind_failed", "error", err)
		respondError(c, response.CodeBadRequest, msgInvalidParams, nil)
		return
	}

	result, err := h.CheckoutService.CreateCheckout(c.Request.Context(), service.CheckoutInput{
		UserEmail: email,
		PriceRef:  req.PriceID,
		Plan:      req.Plan,
		Amount:    req.Amount,
		Currency:  req.Currency,
		Credits:   req.Credits,
		ReturnURL: req.ReturnURL,
		ClientIP:  c.ClientIP(),
	})
	if err != nil {
		var providerErr *service.ProviderError
		if errors.As(err, &providerErr) {
			respondError(c, response.CodeInternal, checkoutProviderErrorMsg(providerErr.PaymentType), err)
			return
		}
		respondWithMappedError(c, err, checkoutErrorRules, response.CodeInternal, msgCheckoutFailed)
		return
	}
	response.Success(c, result)
}

func checkoutProviderErrorMsg(paymentType string) string {
	if strings.EqualFold(paymentType, constants.PaymentTypeWechat) {
		return msgWechatInitFailed
	}
	return msgCheckoutFailed
}
