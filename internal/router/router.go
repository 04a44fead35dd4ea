package router

import (
	"fmt"
	"strings"

	"github.com/aicover-pay/internal/cache"
	"github.com/aicover-pay/internal/config"
	publichandlers "github.com/aicover-pay/internal/http/handlers/public"
	"github.com/aicover-pay/internal/logger"
	"github.com/aicover-pay/internal/provider"

	"github.com/gin-gonic/gin"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	publicHandler := publichandlers.New(c)
	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = "ac"
	}
	redisClient := cache.Client()
	checkoutRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:checkout", redisPrefix),
		WindowSeconds: cfg.RateLimit.Checkout.WindowSeconds,
		MaxRequests:   cfg.RateLimit.Checkout.MaxRequests,
	}
	webhookRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:webhook", redisPrefix),
		WindowSeconds: cfg.RateLimit.Webhook.WindowSeconds,
		MaxRequests:   cfg.RateLimit.Webhook.MaxRequests,
		FailOpen:      true,
	}
	userAuth := UserJWTAuthMiddleware(cfg.JWT)

	// 中间件
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log, "/health"))
	r.Use(CORSMiddleware(cfg.CORS))

	api := r.Group("/api")
	{
		api.POST("/checkout", userAuth, RateLimitMiddleware(redisClient, checkoutRule, KeyByUserEmail), publicHandler.Checkout)

		// 订单状态，按订单号公开查询
		orders := api.Group("/orders/wechat")
		{
			orders.GET("/status", publicHandler.GetWechatOrderStatus)
			orders.GET("/status/wait", publicHandler.WaitWechatOrderStatus)
		}

		// 支付回调
		webhook := api.Group("/webhook")
		webhook.Use(RateLimitMiddleware(redisClient, webhookRule, KeyByIP))
		{
			webhook.POST("/wechat", publicHandler.YunGouOSWebhook)
			webhook.POST("/stripe", publicHandler.StripeWebhook)
			webhook.POST("/wechatpay", publicHandler.WechatPayWebhook)
		}

		user := api.Group("/user")
		user.Use(userAuth)
		{
			user.GET("/credits", publicHandler.GetMyCredits)
			user.POST("/credits/consume", publicHandler.ConsumeMyCredits)
			user.GET("/orders", publicHandler.ListMyOrders)
			user.GET("/orders/:order_no", publicHandler.GetMyOrder)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
