package response

const (
	CodeOK              = 0
	CodeNoAuth          = -2
	CodeBadRequest      = 400
	CodeUnauthorized    = 401
	CodeNotFound        = 404
	CodeTooManyRequests = 429
	CodeInternal        = 500
)

// MsgNoAuth 未登录提示，前端按原文匹配
const MsgNoAuth = "no auth"
