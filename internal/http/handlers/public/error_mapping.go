package public

import (
	"errors"

	handlershared "github.com/aicover-pay/internal/http/handlers/shared"
	"github.com/aicover-pay/internal/http/response"
	"github.com/aicover-pay/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// mappedHandlerError 定义业务错误到接口错误响应的映射关系。
type mappedHandlerError struct {
	target error
	code   int
	msg    string
}

func respondWithMappedError(c *gin.Context, err error, rules []mappedHandlerError, fallbackCode int, fallbackMsg string) {
	for _, rule := range rules {
		if errors.Is(err, rule.target) {
			respondError(c, rule.code, rule.msg, nil)
			return
		}
	}
	respondError(c, fallbackCode, fallbackMsg, err)
}

func concatMappedHandlerErrors(groups ...[]mappedHandlerError) []mappedHandlerError {
	total := 0
	for _, group := range groups {
		total += len(group)
	}
	result := make([]mappedHandlerError, 0, total)
	for _, group := range groups {
		result = append(result, group...)
	}
	return result
}

func requestLog(c *gin.Context) *zap.SugaredLogger {
	return handlershared.RequestLog(c)
}

func respondError(c *gin.Context, code int, msg string, err error) {
	handlershared.RespondError(c, code, msg, err)
}

const (
	msgInvalidParams      = "invalid params"
	msgInvalidPlan        = "invalid plan"
	msgCheckoutFailed     = "checkout failed"
	msgWechatInitFailed   = "WeChat Pay initialization failed"
	msgOrderNoRequired    = "订单号不能为空"
	msgOrderNotFound      = "订单不存在"
	msgOrderStatusFailed  = "查询订单状态失败"
	msgCreditsQueryFailed = "查询积分失败"
	msgOrdersQueryFailed  = "查询订单失败"

	msgCreditsShort         = "insufficient credits"
	msgCreditsConsumeFailed = "扣减积分失败"
)

// 顺序敏感：ErrInvalidPlan 包装了 ErrInvalidParams
var checkoutErrorRules = []mappedHandlerError{
	{target: service.ErrInvalidPlan, code: response.CodeBadRequest, msg: msgInvalidPlan},
	{target: service.ErrInvalidParams, code: response.CodeBadRequest, msg: msgInvalidParams},
	{target: service.ErrPaymentProviderUnavailable, code: response.CodeInternal, msg: msgCheckoutFailed},
}

var orderStatusErrorRules = []mappedHandlerError{
	{target: service.ErrOrderNoRequired, code: response.CodeBadRequest, msg: msgOrderNoRequired},
	{target: service.ErrOrderNotFound, code: response.CodeNotFound, msg: msgOrderNotFound},
}

var userErrorRules = []mappedHandlerError{
	{target: service.ErrUnauthorized, code: response.CodeUnauthorized, msg: "unauthorized"},
}

var creditConsumeErrorRules = []mappedHandlerError{
	{target: service.ErrCreditsShort, code: response.CodeBadRequest, msg: msgCreditsShort},
	{target: service.ErrInvalidParams, code: response.CodeBadRequest, msg: msgInvalidParams},
}
