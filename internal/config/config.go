package config

import (
	"fmt"
	"strings"

	"github.com/aicover-pay/internal/logger"

	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Database  DatabaseConfig  `mapstructure:"database"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Queue     QueueConfig     `mapstructure:"queue"`
	CORS      CORSConfig      `mapstructure:"cors"`
	App       AppConfig       `mapstructure:"app"`
	Payment   PaymentConfig   `mapstructure:"payment"`
	YunGouOS  YunGouOSConfig  `mapstructure:"yungouos"`
	Stripe    StripeConfig    `mapstructure:"stripe"`
	WechatPay WechatPayConfig `mapstructure:"wechatpay"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug / release
}

// LogConfig 日志配置
type LogConfig struct {
	Dir        string `mapstructure:"dir"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
	Level      string `mapstructure:"level"`
}

// ToLoggerOptions 转换为 logger 配置
func (c LogConfig) ToLoggerOptions() logger.Options {
	return logger.Options{
		Dir:        c.Dir,
		Filename:   c.Filename,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
		Compress:   c.Compress,
		Level:      c.Level,
		Service:    "aicover-pay",
	}
}

// DatabasePoolConfig 数据库连接池配置
type DatabasePoolConfig struct {
	MaxOpenConns           int `mapstructure:"max_open_conns"`
	MaxIdleConns           int `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeSeconds int `mapstructure:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int `mapstructure:"conn_max_idle_time_seconds"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver string             `mapstructure:"driver"` // sqlite / postgres
	DSN    string             `mapstructure:"dsn"`
	Pool   DatabasePoolConfig `mapstructure:"pool"`
}

// JWTConfig 用户令牌校验配置
type JWTConfig struct {
	SecretKey  string `mapstructure:"secret"`
	EmailClaim string `mapstructure:"email_claim"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// QueueConfig 异步队列配置
type QueueConfig struct {
	Enabled     bool           `mapstructure:"enabled"`
	Host        string         `mapstructure:"host"`
	Port        int            `mapstructure:"port"`
	Password    string         `mapstructure:"password"`
	DB          int            `mapstructure:"db"`
	Concurrency int            `mapstructure:"concurrency"`
	Queues      map[string]int `mapstructure:"queues"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

// AppConfig 站点信息，用于拼接回调地址与商品描述
type AppConfig struct {
	BaseURL     string `mapstructure:"base_url"`
	Project     string `mapstructure:"project"`
	PayScene    string `mapstructure:"pay_scene"`
	ProductName string `mapstructure:"product_name"`
}

// PaymentConfig 支付路由与超时配置
type PaymentConfig struct {
	// Routes 币种到支付提供方的映射，default 为兜底
	Routes                map[string]string `mapstructure:"routes"`
	RequestTimeoutSeconds int               `mapstructure:"request_timeout_seconds"`
	PollIntervalSeconds   int               `mapstructure:"poll_interval_seconds"`
	PollTimeoutSeconds    int               `mapstructure:"poll_timeout_seconds"`
}

// YunGouOSConfig YunGouOS 微信扫码支付配置
type YunGouOSConfig struct {
	MchID            string   `mapstructure:"mch_id"`
	Key              string   `mapstructure:"key"`
	BaseURL          string   `mapstructure:"base_url"`
	NotifyURL        string   `mapstructure:"notify_url"`
	ReturnURL        string   `mapstructure:"return_url"`
	Attach           string   `mapstructure:"attach"`
	VerifyAmount     bool     `mapstructure:"verify_amount"`
	RequestSignVar   string   `mapstructure:"request_sign_variant"` // sorted / fixed
	NotifySignVar    string   `mapstructure:"notify_sign_variant"`  // sorted / fixed
	NotifySignFields []string `mapstructure:"notify_sign_fields"`
}

// StripeConfig Stripe 托管收银台配置
type StripeConfig struct {
	SecretKey               string `mapstructure:"secret_key"`
	PublishableKey          string `mapstructure:"publishable_key"`
	WebhookSecret           string `mapstructure:"webhook_secret"`
	APIBaseURL              string `mapstructure:"api_base_url"`
	WebhookToleranceSeconds int    `mapstructure:"webhook_tolerance_seconds"`
}

// WechatPayConfig 微信支付 API v3 配置
type WechatPayConfig struct {
	AppID              string `mapstructure:"appid"`
	MerchantID         string `mapstructure:"mchid"`
	MerchantSerialNo   string `mapstructure:"merchant_serial_no"`
	MerchantPrivateKey string `mapstructure:"merchant_private_key"`
	APIV3Key           string `mapstructure:"api_v3_key"`
	NotifyURL          string `mapstructure:"notify_url"`
	BaseURL            string `mapstructure:"base_url"`
}

// RateLimitConfig 接口限流配置
type RateLimitConfig struct {
	Checkout RateLimitRuleConfig `mapstructure:"checkout"`
	Webhook  RateLimitRuleConfig `mapstructure:"webhook"`
}

// RateLimitRuleConfig 单条限流规则
type RateLimitRuleConfig struct {
	WindowSeconds int `mapstructure:"window_seconds"`
	MaxRequests   int `mapstructure:"max_requests"`
}

// Load 加载配置文件
func Load() *Config {
	v := viper.New()
	setDefaults(v)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./")
	v.AddConfigPath("../")   // 从 cmd/server 运行
	v.AddConfigPath("./etc") // etc 文件夹

	// 环境变量支持，例如 yungouos.mch_id -> YUNGOUOS_MCH_ID
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		logger.Warnw("config_file_read_failed",
			"error", err,
			"fallback", "env_or_defaults",
		)
	} else {
		logger.Infow("config_file_loaded", "file", v.ConfigFileUsed())
	}

	cfg, err := unmarshal(v)
	if err != nil {
		logger.Errorw("config_unmarshal_failed", "error", err)
		panic(fmt.Errorf("配置解析失败: %w", err))
	}
	return cfg
}

// Default 返回仅包含默认值的配置，主要用于测试
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg, err := unmarshal(v)
	if err != nil {
		panic(fmt.Errorf("默认配置解析失败: %w", err))
	}
	return cfg
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.normalize()
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("log.dir", "")
	v.SetDefault("log.filename", "app.log")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.compress", true)
	v.SetDefault("log.level", "")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./db/aicover.db")
	v.SetDefault("database.pool.max_open_conns", 1)
	v.SetDefault("database.pool.max_idle_conns", 1)
	v.SetDefault("database.pool.conn_max_lifetime_seconds", 0)
	v.SetDefault("database.pool.conn_max_idle_time_seconds", 0)
	v.SetDefault("jwt.secret", "change-me-in-production")
	v.SetDefault("jwt.email_claim", "email")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "ac")
	v.SetDefault("queue.enabled", false)
	v.SetDefault("queue.host", "127.0.0.1")
	v.SetDefault("queue.port", 6379)
	v.SetDefault("queue.password", "")
	v.SetDefault("queue.db", 1)
	v.SetDefault("queue.concurrency", 5)
	v.SetDefault("queue.queues", map[string]int{"default": 1})
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{
		"Origin",
		"Content-Type",
		"Accept",
		"Authorization",
		"X-Request-ID",
	})
	v.SetDefault("cors.allow_credentials", true)
	v.SetDefault("cors.max_age", 600)
	v.SetDefault("app.base_url", "http://localhost:3000")
	v.SetDefault("app.project", "aicover")
	v.SetDefault("app.pay_scene", "buy-credits")
	v.SetDefault("app.product_name", "aicover credits plan")
	v.SetDefault("payment.routes", map[string]string{
		"cny":     "yungouos",
		"default": "stripe",
	})
	v.SetDefault("payment.request_timeout_seconds", 15)
	v.SetDefault("payment.poll_interval_seconds", 2)
	v.SetDefault("payment.poll_timeout_seconds", 300)
	v.SetDefault("yungouos.base_url", "https://api.pay.yungouos.com")
	v.SetDefault("yungouos.attach", "credits purchase")
	v.SetDefault("yungouos.verify_amount", true)
	v.SetDefault("yungouos.request_sign_variant", "sorted")
	v.SetDefault("yungouos.notify_sign_variant", "fixed")
	v.SetDefault("yungouos.notify_sign_fields", []string{"code", "mchId", "money", "orderNo", "outTradeNo", "payNo"})
	v.SetDefault("stripe.api_base_url", "https://api.stripe.com")
	v.SetDefault("stripe.webhook_tolerance_seconds", 300)
	v.SetDefault("wechatpay.base_url", "https://api.mch.weixin.qq.com")
	v.SetDefault("rate_limit.checkout.window_seconds", 60)
	v.SetDefault("rate_limit.checkout.max_requests", 10)
	v.SetDefault("rate_limit.webhook.window_seconds", 60)
	v.SetDefault("rate_limit.webhook.max_requests", 120)
}

func (c *Config) normalize() {
	c.App.BaseURL = strings.TrimRight(strings.TrimSpace(c.App.BaseURL), "/")
	if c.Payment.Routes == nil {
		c.Payment.Routes = map[string]string{}
	}
	routes := make(map[string]string, len(c.Payment.Routes))
	for currency, provider := range c.Payment.Routes {
		routes[strings.ToLower(strings.TrimSpace(currency))] = strings.ToLower(strings.TrimSpace(provider))
	}
	c.Payment.Routes = routes
	base := c.App.BaseURL
	if strings.TrimSpace(c.YunGouOS.NotifyURL) == "" && base != "" {
		c.YunGouOS.NotifyURL = base + "/api/webhook/wechat"
	}
	if strings.TrimSpace(c.YunGouOS.ReturnURL) == "" && base != "" {
		c.YunGouOS.ReturnURL = base + "/pay-success"
	}
	if strings.TrimSpace(c.WechatPay.NotifyURL) == "" && base != "" {
		c.WechatPay.NotifyURL = base + "/api/webhook/wechatpay"
	}
}
