package shared

import (
	"strings"

	"github.com/aicover-pay/internal/constants"

	"github.com/gin-gonic/gin"
)

// UserEmailKey 鉴权中间件写入的用户邮箱键
const UserEmailKey = constants.ContextKeyUserEmail

// GetUserEmail 读取鉴权后的用户邮箱，缺失时返回 false
func GetUserEmail(c *gin.Context) (string, bool) {
	value, exists := c.Get(UserEmailKey)
	if !exists {
		return "", false
	}
	email, ok := value.(string)
	if !ok {
		return "", false
	}
	email = strings.TrimSpace(email)
	return email, email != ""
}
