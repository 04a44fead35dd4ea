package provider

import (
	"time"

	"github.com/aicover-pay/internal/cache"
	"github.com/aicover-pay/internal/config"
	"github.com/aicover-pay/internal/logger"
	"github.com/aicover-pay/internal/models"
	"github.com/aicover-pay/internal/queue"
	"github.com/aicover-pay/internal/repository"
	"github.com/aicover-pay/internal/service"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	QueueClient *queue.Client

	// Repositories
	OrderRepo  repository.OrderRepository
	CreditRepo repository.CreditRepository

	// Services
	ProviderRegistry   *service.ProviderRegistry
	CheckoutService    *service.CheckoutService
	ReconcileService   *service.ReconcileService
	OrderStatusService *service.OrderStatusService
	CreditService      *service.CreditService
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) *Container {
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	queueClient, err := queue.NewClient(&cfg.Queue)
	if err != nil {
		logger.Errorw("provider_init_queue_client_failed", "error", err)
	}

	c := &Container{
		Config:      cfg,
		QueueClient: queueClient,
	}
	c.initRepositories()
	c.initServices()
	return c
}

func (c *Container) initRepositories() {
	db := models.DB
	c.OrderRepo = repository.NewOrderRepository(db)
	c.CreditRepo = repository.NewCreditRepository(db)
}

func (c *Container) initServices() {
	cfg := c.Config
	c.ProviderRegistry = service.NewProviderRegistry(cfg.Payment.Routes, service.BuildPaymentProviders(cfg)...)
	logger.Infow("provider_payment_registry_ready", "providers", c.ProviderRegistry.Names(), "routes", cfg.Payment.Routes)

	c.CheckoutService = service.NewCheckoutService(
		c.OrderRepo,
		c.ProviderRegistry,
		time.Duration(cfg.Payment.RequestTimeoutSeconds)*time.Second,
	)
	c.ReconcileService = service.NewReconcileService(c.OrderRepo, c.CreditRepo, c.QueueClient, service.ReconcileOptions{
		YunGouOS:     service.YunGouOSClientConfig(cfg),
		VerifyAmount: cfg.YunGouOS.VerifyAmount,
		Stripe:       service.StripeClientConfig(cfg),
		WechatPay:    service.WechatPayClientConfig(cfg),
	})
	c.OrderStatusService = service.NewOrderStatusService(
		c.OrderRepo,
		time.Duration(cfg.Payment.PollIntervalSeconds)*time.Second,
		time.Duration(cfg.Payment.PollTimeoutSeconds)*time.Second,
	)
	c.CreditService = service.NewCreditService(c.CreditRepo, c.OrderRepo)
}

// Close 释放外部连接
func (c *Container) Close() {
	if c == nil {
		return
	}
	if err := c.QueueClient.Close(); err != nil {
		logger.Warnw("provider_close_queue_client_failed", "error", err)
	}
	if err := cache.Close(); err != nil {
		logger.Warnw("provider_close_redis_failed", "error", err)
	}
}
