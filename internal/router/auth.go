package router

import (
	"strings"

	"github.com/aicover-pay/internal/config"
	handlershared "github.com/aicover-pay/internal/http/handlers/shared"
	"github.com/aicover-pay/internal/http/response"
	"github.com/aicover-pay/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const defaultEmailClaim = "email"

// UserJWTAuthMiddleware 校验 HS256 用户令牌并把邮箱写入上下文
// 令牌由站点登录服务签发，这里只负责校验
func UserJWTAuthMiddleware(cfg config.JWTConfig) gin.HandlerFunc {
	secret := []byte(strings.TrimSpace(cfg.SecretKey))
	claimName := strings.TrimSpace(cfg.EmailClaim)
	if claimName == "" {
		claimName = defaultEmailClaim
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	keyFunc := func(*jwt.Token) (interface{}, error) { return secret, nil }

	return func(c *gin.Context) {
		if len(secret) == 0 {
			logger.Errorw("user_jwt_secret_missing")
			response.NoAuth(c)
			return
		}
		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			response.NoAuth(c)
			return
		}
		claims := jwt.MapClaims{}
		if _, err := parser.ParseWithClaims(raw, claims, keyFunc); err != nil {
			logger.Debugw("user_jwt_invalid", "request_id", getRequestID(c), "error", err)
			response.NoAuth(c)
			return
		}
		email := emailFromClaims(claims, claimName)
		if email == "" {
			logger.Debugw("user_jwt_email_missing", "request_id", getRequestID(c), "claim", claimName)
			response.NoAuth(c)
			return
		}
		c.Set(handlershared.UserEmailKey, email)
		c.Next()
	}
}

// emailFromClaims 邮箱统一小写，订单归属按小写比较
func emailFromClaims(claims jwt.MapClaims, name string) string {
	value, _ := claims[name].(string)
	email := strings.ToLower(strings.TrimSpace(value))
	if !strings.Contains(email, "@") {
		return ""
	}
	return email
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
