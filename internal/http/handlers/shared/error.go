package shared

import (
	"github.com/aicover-pay/internal/constants"
	"github.com/aicover-pay/internal/http/response"
	"github.com/aicover-pay/internal/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestLog 提供携带 request_id 的日志实例。
func RequestLog(c *gin.Context) *zap.SugaredLogger {
	if c == nil {
		return logger.S()
	}
	if requestID, ok := c.Get(constants.ContextKeyRequestID); ok {
		if id, ok := requestID.(string); ok && id != "" {
			return logger.SW(constants.ContextKeyRequestID, id)
		}
	}
	return logger.S()
}

// RespondError 返回业务错误；带原始错误时挂到上下文，由访问日志统一输出
func RespondError(c *gin.Context, code int, msg string, err error) {
	if err != nil {
		appErr := response.WrapError(code, msg, err)
		_ = c.Error(appErr)
		RequestLog(c).Debugw("handler_error", "code", appErr.Code, "error", err)
	}
	response.Error(c, code, msg)
}
