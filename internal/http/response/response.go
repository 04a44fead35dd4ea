package response

import (
	"net/http"

	"github.com/aicover-pay/internal/constants"

	"github.com/gin-gonic/gin"
)

// Response 统一响应结构，HTTP 状态恒为 200，业务码放在 code
type Response struct {
	Code int         `json:"code"`
	Msg  string      `json:"msg"`
	Data interface{} `json:"data"`
}

// errorData 错误响应只回传 request_id 便于排查
type errorData struct {
	RequestID string `json:"request_id,omitempty"`
}

// NoAuthResponse 鉴权失败报文，前端按该结构跳转登录
type NoAuthResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// AppError 携带业务码的错误，写入 gin 上下文供访问日志使用
type AppError struct {
	Code    int
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *AppError) Unwrap() error { return e.Err }

// WrapError 包装错误
func WrapError(code int, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Code: CodeOK, Msg: "success", Data: data})
}

// Error 业务错误响应
func Error(c *gin.Context, code int, msg string) {
	var data interface{}
	if id := c.GetString(constants.ContextKeyRequestID); id != "" {
		data = errorData{RequestID: id}
	}
	c.JSON(http.StatusOK, Response{Code: code, Msg: msg, Data: data})
}

// NoAuth 鉴权失败，使用 HTTP 401 与固定报文
func NoAuth(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, NoAuthResponse{Code: CodeNoAuth, Message: MsgNoAuth})
}

// PlainText 纯文本响应，支付回调应答使用
func PlainText(c *gin.Context, status int, body string) {
	c.Data(status, "text/plain; charset=utf-8", []byte(body))
}
