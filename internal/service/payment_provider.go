package service

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aicover-pay/internal/config"
	"github.com/aicover-pay/internal/constants"
	"github.com/aicover-pay/internal/models"
	"github.com/aicover-pay/internal/payment/stripe"
	"github.com/aicover-pay/internal/payment/wechatpay"
	"github.com/aicover-pay/internal/payment/yungouos"
)

// PaymentProvider 支付提供方能力
type PaymentProvider interface {
	Name() string
	PaymentType() string
	CreatePayment(ctx context.Context, order *models.Order, opts CreateOptions) (*ProviderPayment, error)
}

// CreateOptions 下单附加参数
type CreateOptions struct {
	ReturnURL string
	ClientIP  string
}

// ProviderPayment 提供方下单结果
type ProviderPayment struct {
	SessionID string
	QRCode    string
	QRURL     string
	PublicKey string
}

// ProviderRegistry 按币种路由到支付提供方
type ProviderRegistry struct {
	routes    map[string]string
	providers map[string]PaymentProvider
}

// NewProviderRegistry 创建路由表，routes 的键为小写币种，default 为兜底
func NewProviderRegistry(routes map[string]string, providers ...PaymentProvider) *ProviderRegistry {
	r := &ProviderRegistry{
		routes:    make(map[string]string, len(routes)),
		providers: make(map[string]PaymentProvider, len(providers)),
	}
	for currency, name := range routes {
		r.routes[strings.ToLower(strings.TrimSpace(currency))] = strings.ToLower(strings.TrimSpace(name))
	}
	for _, p := range providers {
		if p == nil {
			continue
		}
		r.providers[p.Name()] = p
	}
	return r
}

// Resolve 根据币种选择提供方
func (r *ProviderRegistry) Resolve(currency string) (PaymentProvider, error) {
	if r == nil {
		return nil, ErrPaymentProviderUnavailable
	}
	currency = strings.ToLower(strings.TrimSpace(currency))
	name, ok := r.routes[currency]
	if !ok {
		name, ok = r.routes[constants.PaymentRouteDefault]
	}
	if !ok || name == "" {
		return nil, fmt.Errorf("%w: no route for currency %s", ErrPaymentProviderUnavailable, currency)
	}
	provider, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: provider %s not configured", ErrPaymentProviderUnavailable, name)
	}
	return provider, nil
}

// Names 已注册提供方名称
func (r *ProviderRegistry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BuildPaymentProviders 根据配置构建已配置凭据的提供方
func BuildPaymentProviders(cfg *config.Config) []PaymentProvider {
	if cfg == nil {
		return nil
	}
	providers := make([]PaymentProvider, 0, 3)
	if strings.TrimSpace(cfg.YunGouOS.MchID) != "" && strings.TrimSpace(cfg.YunGouOS.Key) != "" {
		providers = append(providers, NewYunGouOSProvider(YunGouOSClientConfig(cfg), cfg.App))
	}
	if strings.TrimSpace(cfg.Stripe.SecretKey) != "" {
		providers = append(providers, NewStripeProvider(StripeClientConfig(cfg), cfg.App))
	}
	if strings.TrimSpace(cfg.WechatPay.MerchantID) != "" && strings.TrimSpace(cfg.WechatPay.APIV3Key) != "" {
		providers = append(providers, NewWechatPayProvider(WechatPayClientConfig(cfg), cfg.App))
	}
	return providers
}

// YunGouOSClientConfig 转换 YunGouOS 客户端配置
func YunGouOSClientConfig(cfg *config.Config) *yungouos.Config {
	return &yungouos.Config{
		MchID:              cfg.YunGouOS.MchID,
		Key:                cfg.YunGouOS.Key,
		BaseURL:            cfg.YunGouOS.BaseURL,
		NotifyURL:          cfg.YunGouOS.NotifyURL,
		ReturnURL:          cfg.YunGouOS.ReturnURL,
		Attach:             cfg.YunGouOS.Attach,
		RequestSignVariant: cfg.YunGouOS.RequestSignVar,
		NotifySignVariant:  cfg.YunGouOS.NotifySignVar,
		NotifySignFields:   cfg.YunGouOS.NotifySignFields,
		Timeout:            time.Duration(cfg.Payment.RequestTimeoutSeconds) * time.Second,
	}
}

// StripeClientConfig 转换 Stripe 客户端配置
func StripeClientConfig(cfg *config.Config) *stripe.Config {
	return &stripe.Config{
		SecretKey:               cfg.Stripe.SecretKey,
		PublishableKey:          cfg.Stripe.PublishableKey,
		WebhookSecret:           cfg.Stripe.WebhookSecret,
		APIBaseURL:              cfg.Stripe.APIBaseURL,
		WebhookToleranceSeconds: cfg.Stripe.WebhookToleranceSeconds,
		Timeout:                 time.Duration(cfg.Payment.RequestTimeoutSeconds) * time.Second,
	}
}

// WechatPayClientConfig 转换微信支付 v3 配置
func WechatPayClientConfig(cfg *config.Config) *wechatpay.Config {
	return &wechatpay.Config{
		AppID:              cfg.WechatPay.AppID,
		MerchantID:         cfg.WechatPay.MerchantID,
		MerchantSerialNo:   cfg.WechatPay.MerchantSerialNo,
		MerchantPrivateKey: cfg.WechatPay.MerchantPrivateKey,
		APIV3Key:           cfg.WechatPay.APIV3Key,
		NotifyURL:          cfg.WechatPay.NotifyURL,
		BaseURL:            cfg.WechatPay.BaseURL,
	}
}

// YunGouOSProvider YunGouOS 微信扫码
type YunGouOSProvider struct {
	cfg *yungouos.Config
	app config.AppConfig
}

// NewYunGouOSProvider 创建 YunGouOS 提供方
func NewYunGouOSProvider(cfg *yungouos.Config, app config.AppConfig) *YunGouOSProvider {
	return &YunGouOSProvider{cfg: cfg, app: app}
}

func (p *YunGouOSProvider) Name() string        { return constants.PaymentProviderYunGouOS }
func (p *YunGouOSProvider) PaymentType() string { return constants.PaymentTypeWechat }

// CreatePayment 下单金额取订单金额（分转元）
func (p *YunGouOSProvider) CreatePayment(ctx context.Context, order *models.Order, opts CreateOptions) (*ProviderPayment, error) {
	result, err := yungouos.NativePay(ctx, p.cfg, yungouos.NativePayInput{
		OutTradeNo: order.OrderNo,
		TotalFee:   models.MinorToMajor(order.Amount),
		Body:       p.app.ProductName,
		ReturnURL:  opts.ReturnURL,
	})
	if err != nil {
		return nil, err
	}
	return &ProviderPayment{QRCode: result.QRCode, QRURL: result.QRCode}, nil
}

// StripeProvider Stripe 托管收银台
type StripeProvider struct {
	cfg *stripe.Config
	app config.AppConfig
}

// NewStripeProvider 创建 Stripe 提供方
func NewStripeProvider(cfg *stripe.Config, app config.AppConfig) *StripeProvider {
	return &StripeProvider{cfg: cfg, app: app}
}

func (p *StripeProvider) Name() string        { return constants.PaymentProviderStripe }
func (p *StripeProvider) PaymentType() string { return constants.PaymentTypeStripe }

func (p *StripeProvider) CreatePayment(ctx context.Context, order *models.Order, _ CreateOptions) (*ProviderPayment, error) {
	base := strings.TrimRight(p.app.BaseURL, "/")
	result, err := stripe.CreateCheckoutSession(ctx, p.cfg, stripe.CheckoutInput{
		OrderNo:       order.OrderNo,
		CustomerEmail: order.UserEmail,
		AmountMinor:   order.Amount,
		Currency:      order.Currency,
		ProductName:   p.app.ProductName,
		Recurring:     order.Plan == constants.PlanMonthly,
		SuccessURL:    base + "/pay-success/" + stripe.SessionIDPlaceholder,
		CancelURL:     base + "/pricing",
		Metadata: map[string]string{
			"project":    p.app.Project,
			"pay_scene":  p.app.PayScene,
			"user_email": order.UserEmail,
			"credits":    strconv.Itoa(order.Credits),
		},
	})
	if err != nil {
		return nil, err
	}
	return &ProviderPayment{SessionID: result.SessionID, PublicKey: p.cfg.PublishableKey}, nil
}

// WechatPayProvider 微信支付 v3 Native
type WechatPayProvider struct {
	cfg *wechatpay.Config
	app config.AppConfig
}

// NewWechatPayProvider 创建微信支付 v3 提供方
func NewWechatPayProvider(cfg *wechatpay.Config, app config.AppConfig) *WechatPayProvider {
	return &WechatPayProvider{cfg: cfg, app: app}
}

func (p *WechatPayProvider) Name() string        { return constants.PaymentProviderWechatPay }
func (p *WechatPayProvider) PaymentType() string { return constants.PaymentTypeWechat }

func (p *WechatPayProvider) CreatePayment(ctx context.Context, order *models.Order, opts CreateOptions) (*ProviderPayment, error) {
	result, err := wechatpay.CreateNative(ctx, p.cfg, wechatpay.NativeInput{
		OrderNo:     order.OrderNo,
		AmountFen:   order.Amount,
		Description: p.app.ProductName,
		ClientIP:    opts.ClientIP,
	})
	if err != nil {
		return nil, err
	}
	return &ProviderPayment{QRCode: result.CodeURL, QRURL: result.CodeURL}, nil
}
