// Package stripe 封装 Stripe 托管收银台下单与 webhook 验签
package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var (
	ErrConfigInvalid    = errors.New("stripe config invalid")
	ErrRequestFailed    = errors.New("stripe request failed")
	ErrResponseInvalid  = errors.New("stripe response invalid")
	ErrSignatureInvalid = errors.New("stripe signature invalid")
)

const (
	defaultAPIBaseURL       = "https://api.stripe.com"
	defaultTimeout          = 12 * time.Second
	defaultWebhookTolerance = 5 * time.Minute
	maxResponseBytes        = 1 << 20

	// SessionIDPlaceholder Stripe 在跳转时替换为真实会话 ID
	SessionIDPlaceholder = "{CHECKOUT_SESSION_ID}"
)

// 支付状态
const (
	StatusSuccess = "success"
	StatusPending = "pending"
	StatusFailed  = "failed"
	StatusExpired = "expired"
)

// Config Stripe 配置
type Config struct {
	SecretKey               string
	PublishableKey          string
	WebhookSecret           string
	APIBaseURL              string
	WebhookToleranceSeconds int
	Timeout                 time.Duration
}

func (c *Config) baseURL() string {
	if base := strings.TrimRight(strings.TrimSpace(c.APIBaseURL), "/"); base != "" {
		return base
	}
	return defaultAPIBaseURL
}

func (c *Config) tolerance() time.Duration {
	if c.WebhookToleranceSeconds > 0 {
		return time.Duration(c.WebhookToleranceSeconds) * time.Second
	}
	return defaultWebhookTolerance
}

// CheckoutInput 创建托管收银台输入
type CheckoutInput struct {
	OrderNo       string
	CustomerEmail string
	AmountMinor   int64
	Currency      string
	ProductName   string
	Recurring     bool // 按月订阅
	SuccessURL    string
	CancelURL     string
	Metadata      map[string]string
}

// CheckoutResult 创建托管收银台返回
type CheckoutResult struct {
	SessionID string
	URL       string
	Mode      string
}

// WebhookResult 已验签的 webhook 事件
type WebhookResult struct {
	EventID     string
	EventType   string
	ObjectType  string
	OrderNo     string
	SessionID   string
	Status      string
	AmountMinor int64
	Currency    string
	Metadata    map[string]string
}

// ValidateConfig 校验下单所需配置
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return fmt.Errorf("%w: secret_key is required", ErrConfigInvalid)
	}
	if _, err := url.ParseRequestURI(cfg.baseURL()); err != nil {
		return fmt.Errorf("%w: api_base_url is invalid", ErrConfigInvalid)
	}
	return nil
}

func (in CheckoutInput) validate() error {
	if strings.TrimSpace(in.OrderNo) == "" {
		return fmt.Errorf("%w: order_no is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(in.Currency) == "" {
		return fmt.Errorf("%w: currency is required", ErrConfigInvalid)
	}
	if in.AmountMinor <= 0 {
		return fmt.Errorf("%w: amount must be greater than zero", ErrConfigInvalid)
	}
	for name, raw := range map[string]string{"success_url": in.SuccessURL, "cancel_url": in.CancelURL} {
		// 占位符含花括号，校验前替换
		probe := strings.ReplaceAll(strings.TrimSpace(raw), SessionIDPlaceholder, "cs_placeholder")
		if _, err := url.ParseRequestURI(probe); err != nil {
			return fmt.Errorf("%w: %s is invalid", ErrConfigInvalid, name)
		}
	}
	return nil
}

func (in CheckoutInput) mode() string {
	if in.Recurring {
		return "subscription"
	}
	return "payment"
}

// form 组装 Checkout Session 表单，订阅模式额外写入 subscription_data
// 续费发票只携带订阅上的 metadata
func (in CheckoutInput) form() url.Values {
	orderNo := strings.TrimSpace(in.OrderNo)
	name := strings.TrimSpace(in.ProductName)
	if name == "" {
		name = orderNo
	}
	form := url.Values{
		"mode":                    {in.mode()},
		"success_url":             {strings.TrimSpace(in.SuccessURL)},
		"cancel_url":              {strings.TrimSpace(in.CancelURL)},
		"client_reference_id":     {orderNo},
		"allow_promotion_codes":   {"false"},
		"payment_method_types[]":  {"card"},
		"line_items[0][quantity]": {"1"},
	}
	if email := strings.TrimSpace(in.CustomerEmail); email != "" {
		form.Set("customer_email", email)
	}
	priceData := "line_items[0][price_data]"
	form.Set(priceData+"[currency]", strings.ToLower(strings.TrimSpace(in.Currency)))
	form.Set(priceData+"[unit_amount]", strconv.FormatInt(in.AmountMinor, 10))
	form.Set(priceData+"[product_data][name]", name)
	if in.Recurring {
		form.Set(priceData+"[recurring][interval]", "month")
	}

	metadata := make(map[string]string, len(in.Metadata)+1)
	for k, v := range in.Metadata {
		metadata[k] = v
	}
	metadata["order_no"] = orderNo
	for k, v := range metadata {
		form.Set("metadata["+k+"]", v)
		if in.Recurring {
			form.Set("subscription_data[metadata]["+k+"]", v)
		}
	}
	return form
}

type sessionResponse struct {
	ID    string `json:"id"`
	URL   string `json:"url"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// CreateCheckoutSession 创建 Checkout Session，按月套餐使用订阅模式
func CreateCheckoutSession(ctx context.Context, cfg *Config, input CheckoutInput) (*CheckoutResult, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if err := input.validate(); err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	body, status, err := postForm(ctx, cfg, "/v1/checkout/sessions", input.form())
	if err != nil {
		return nil, err
	}
	var resp sessionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode response failed", ErrResponseInvalid)
	}
	if status < 200 || status >= 300 {
		if resp.Error != nil && resp.Error.Message != "" {
			return nil, fmt.Errorf("%w: status %d: %s", ErrResponseInvalid, status, resp.Error.Message)
		}
		return nil, fmt.Errorf("%w: status %d", ErrResponseInvalid, status)
	}
	if strings.TrimSpace(resp.ID) == "" {
		return nil, fmt.Errorf("%w: missing session id", ErrResponseInvalid)
	}
	return &CheckoutResult{SessionID: resp.ID, URL: resp.URL, Mode: input.mode()}, nil
}

func postForm(ctx context.Context, cfg *Config, path string, form url.Values) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.baseURL()+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: build request failed", ErrRequestFailed)
	}
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(cfg.SecretKey))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	resp, err := (&http.Client{Timeout: timeout}).Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: read response failed", ErrResponseInvalid)
	}
	return body, resp.StatusCode, nil
}

// ComputeSignature 生成 v1 签名：HMAC-SHA256("{t}.{body}")
func ComputeSignature(secret string, timestamp int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte{'.'})
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// signatureHeader Stripe-Signature 解析结果
type signatureHeader struct {
	timestamp int64
	v1        []string
}

func parseSignatureHeader(raw string) (signatureHeader, error) {
	var sh signatureHeader
	for _, part := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch key {
		case "t":
			ts, err := strconv.ParseInt(value, 10, 64)
			if err != nil || ts <= 0 {
				return sh, fmt.Errorf("%w: invalid timestamp", ErrSignatureInvalid)
			}
			sh.timestamp = ts
		case "v1":
			if value != "" {
				sh.v1 = append(sh.v1, strings.ToLower(value))
			}
		}
	}
	if sh.timestamp == 0 {
		return sh, fmt.Errorf("%w: timestamp is missing", ErrSignatureInvalid)
	}
	if len(sh.v1) == 0 {
		return sh, fmt.Errorf("%w: v1 signature is missing", ErrSignatureInvalid)
	}
	return sh, nil
}

// verifySignature 任一 v1 签名匹配且时间戳在容忍范围内
func verifySignature(cfg *Config, raw string, body []byte, now time.Time) error {
	if raw == "" {
		return fmt.Errorf("%w: Stripe-Signature is required", ErrSignatureInvalid)
	}
	sh, err := parseSignatureHeader(raw)
	if err != nil {
		return err
	}
	skew := now.Sub(time.Unix(sh.timestamp, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > cfg.tolerance() {
		return fmt.Errorf("%w: timestamp outside tolerance", ErrSignatureInvalid)
	}
	expected := []byte(ComputeSignature(cfg.WebhookSecret, sh.timestamp, body))
	for _, sig := range sh.v1 {
		if hmac.Equal([]byte(sig), expected) {
			return nil
		}
	}
	return fmt.Errorf("%w: verify failed", ErrSignatureInvalid)
}

type webhookEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// eventObject 覆盖 checkout.session 与 invoice 两类对象用到的字段
type eventObject struct {
	Object        string            `json:"object"`
	ID            string            `json:"id"`
	Currency      string            `json:"currency"`
	Metadata      map[string]string `json:"metadata"`
	PaymentStatus string            `json:"payment_status"`
	Status        string            `json:"status"`
	AmountTotal   int64             `json:"amount_total"`
	AmountPaid    int64             `json:"amount_paid"`

	SubscriptionDetails struct {
		Metadata map[string]string `json:"metadata"`
	} `json:"subscription_details"`
}

// VerifyAndParseWebhook 校验签名并解析支付相关事件
func VerifyAndParseWebhook(cfg *Config, headers map[string]string, body []byte, now time.Time) (*WebhookResult, error) {
	if cfg == nil || strings.TrimSpace(cfg.WebhookSecret) == "" {
		return nil, fmt.Errorf("%w: webhook_secret is required", ErrConfigInvalid)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: body is empty", ErrResponseInvalid)
	}
	if now.IsZero() {
		now = time.Now()
	}
	if err := verifySignature(cfg, headerValue(headers, "Stripe-Signature"), body, now); err != nil {
		return nil, err
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("%w: decode event failed", ErrResponseInvalid)
	}
	if event.Type == "" {
		return nil, fmt.Errorf("%w: missing event type", ErrResponseInvalid)
	}
	if len(event.Data.Object) == 0 || string(event.Data.Object) == "null" {
		return nil, fmt.Errorf("%w: missing event object", ErrResponseInvalid)
	}
	var obj eventObject
	if err := json.Unmarshal(event.Data.Object, &obj); err != nil {
		return nil, fmt.Errorf("%w: decode event object failed", ErrResponseInvalid)
	}
	return obj.toResult(event), nil
}

func (o eventObject) toResult(event webhookEvent) *WebhookResult {
	result := &WebhookResult{
		EventID:    event.ID,
		EventType:  event.Type,
		ObjectType: o.Object,
		Currency:   strings.ToLower(o.Currency),
		Metadata:   o.Metadata,
		Status:     StatusPending,
	}
	switch o.Object {
	case "checkout.session":
		result.SessionID = o.ID
		result.AmountMinor = o.AmountTotal
		result.Status = mapCheckoutSessionStatus(event.Type, o.PaymentStatus, o.Status)
	case "invoice":
		result.AmountMinor = o.AmountPaid
		if len(result.Metadata) == 0 {
			result.Metadata = o.SubscriptionDetails.Metadata
		}
		if strings.EqualFold(event.Type, "invoice.paid") || o.Status == "paid" {
			result.Status = StatusSuccess
		}
	}
	if result.Metadata == nil {
		result.Metadata = map[string]string{}
	}
	result.OrderNo = strings.TrimSpace(result.Metadata["order_no"])
	return result
}

func mapCheckoutSessionStatus(eventType, paymentStatus, sessionStatus string) string {
	switch strings.ToLower(strings.TrimSpace(eventType)) {
	case "checkout.session.expired":
		return StatusExpired
	case "checkout.session.async_payment_failed":
		return StatusFailed
	}
	if strings.EqualFold(paymentStatus, "paid") {
		return StatusSuccess
	}
	if strings.EqualFold(sessionStatus, "expired") {
		return StatusExpired
	}
	return StatusPending
}

func headerValue(headers map[string]string, key string) string {
	if v, ok := headers[key]; ok {
		return strings.TrimSpace(v)
	}
	for h, v := range headers {
		if strings.EqualFold(strings.TrimSpace(h), key) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
