package yungouos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	ErrConfigInvalid    = errors.New("yungouos config invalid")
	ErrRequestFailed    = errors.New("yungouos request failed")
	ErrResponseInvalid  = errors.New("yungouos response invalid")
	ErrSignatureInvalid = errors.New("yungouos signature invalid")
	ErrMerchantMismatch = errors.New("yungouos merchant mismatch")
)

const (
	defaultBaseURL  = "https://api.pay.yungouos.com"
	nativePayPath   = "/api/pay/wxpay/nativePay"
	defaultTimeout  = 10 * time.Second
	nativePayType   = "1" // 返回二维码链接
	nativePayNoAuto = "0"
)

// Config YunGouOS 商户配置
type Config struct {
	MchID              string
	Key                string
	BaseURL            string
	NotifyURL          string
	ReturnURL          string
	Attach             string
	RequestSignVariant string
	NotifySignVariant  string
	NotifySignFields   []string
	Timeout            time.Duration
}

// NativePayInput 扫码下单输入
type NativePayInput struct {
	OutTradeNo string
	TotalFee   string // 单位：元，两位小数
	Body       string
	Attach     string
	NotifyURL  string
	ReturnURL  string
}

// NativePayResult 扫码下单返回
type NativePayResult struct {
	QRCode string
	Raw    map[string]interface{}
}

// Notification 支付结果异步通知
type Notification struct {
	Code       string // 1 成功 0 失败
	OrderNo    string // YunGouOS 系统订单号
	OutTradeNo string // 商户订单号
	PayNo      string // 第三方支付单号
	Money      string // 单位：元
	MchID      string
	PayChannel string
	Time       string
	Attach     string
	OpenID     string
	PayBank    string
	Sign       string
}

// ValidateConfig 校验配置
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.MchID) == "" {
		return fmt.Errorf("%w: mch_id is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.Key) == "" {
		return fmt.Errorf("%w: key is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.NotifyURL) == "" {
		return fmt.Errorf("%w: notify_url is required", ErrConfigInvalid)
	}
	if _, err := url.ParseRequestURI(strings.TrimSpace(cfg.NotifyURL)); err != nil {
		return fmt.Errorf("%w: notify_url is invalid", ErrConfigInvalid)
	}
	return nil
}

// NativePay 调用微信扫码支付下单
func NativePay(ctx context.Context, cfg *Config, input NativePayInput) (*NativePayResult, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.OutTradeNo) == "" || strings.TrimSpace(input.TotalFee) == "" {
		return nil, fmt.Errorf("%w: order input is invalid", ErrConfigInvalid)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	signParams := map[string]string{
		"out_trade_no": strings.TrimSpace(input.OutTradeNo),
		"total_fee":    strings.TrimSpace(input.TotalFee),
		"mch_id":       strings.TrimSpace(cfg.MchID),
		"body":         strings.TrimSpace(input.Body),
	}
	params := map[string]string{
		"type":       nativePayType,
		"auto":       nativePayNoAuto,
		"notify_url": pickFirstNonEmpty(input.NotifyURL, cfg.NotifyURL),
		"return_url": pickFirstNonEmpty(input.ReturnURL, cfg.ReturnURL),
		"attach":     pickFirstNonEmpty(input.Attach, cfg.Attach),
	}
	for k, v := range signParams {
		params[k] = v
	}
	params["sign"] = Sign(signParams, normalizeVariant(cfg.RequestSignVariant, VariantSorted), RequestSignFields, cfg.Key)

	body, err := postForm(ctx, buildEndpoint(cfg.BaseURL, nativePayPath), params, cfg.Timeout)
	if err != nil {
		return nil, err
	}
	return parseNativePayResponse(body)
}

// ParseNotification 将通知字段映射为结构体
func ParseNotification(fields map[string]string) Notification {
	get := func(key string) string {
		return strings.TrimSpace(fields[key])
	}
	return Notification{
		Code:       get("code"),
		OrderNo:    get("orderNo"),
		OutTradeNo: get("outTradeNo"),
		PayNo:      get("payNo"),
		Money:      get("money"),
		MchID:      get("mchId"),
		PayChannel: get("payChannel"),
		Time:       get("time"),
		Attach:     get("attach"),
		OpenID:     get("openId"),
		PayBank:    get("payBank"),
		Sign:       get("sign"),
	}
}

// VerifyNotification 校验通知签名与商户号
func VerifyNotification(cfg *Config, fields map[string]string) (*Notification, error) {
	if cfg == nil || strings.TrimSpace(cfg.Key) == "" {
		return nil, ErrConfigInvalid
	}
	signFields := cfg.NotifySignFields
	if len(signFields) == 0 {
		signFields = NotifySignFields
	}
	if !Verify(fields, normalizeVariant(cfg.NotifySignVariant, VariantFixed), signFields, cfg.Key) {
		return nil, ErrSignatureInvalid
	}
	notification := ParseNotification(fields)
	if notification.MchID != strings.TrimSpace(cfg.MchID) {
		return nil, ErrMerchantMismatch
	}
	return &notification, nil
}

func parseNativePayResponse(body []byte) (*NativePayResult, error) {
	raw := map[string]interface{}{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode response failed", ErrResponseInvalid)
	}
	code, ok := raw["code"].(float64)
	if !ok {
		return nil, fmt.Errorf("%w: missing code", ErrResponseInvalid)
	}
	if code != 0 {
		msg, _ := raw["msg"].(string)
		return nil, fmt.Errorf("%w: code %v msg %s", ErrResponseInvalid, code, strings.TrimSpace(msg))
	}
	qr := ""
	switch data := raw["data"].(type) {
	case string:
		qr = strings.TrimSpace(data)
	case map[string]interface{}:
		for _, key := range []string{"qrCodeUrl", "qrcode", "data"} {
			if value, ok := data[key].(string); ok && strings.TrimSpace(value) != "" {
				qr = strings.TrimSpace(value)
				break
			}
		}
	}
	if qr == "" {
		return nil, fmt.Errorf("%w: missing qr data", ErrResponseInvalid)
	}
	return &NativePayResult{QRCode: qr, Raw: raw}, nil
}

func buildEndpoint(baseURL, path string) string {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	return base + path
}

func postForm(ctx context.Context, endpoint string, params map[string]string, timeout time.Duration) ([]byte, error) {
	values := url.Values{}
	for k, v := range params {
		if v == "" {
			continue
		}
		values.Set(k, v)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(values.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: build request failed", ErrRequestFailed)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", ErrRequestFailed, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response failed", ErrResponseInvalid)
	}
	return body, nil
}

func normalizeVariant(variant, fallback string) string {
	switch strings.ToLower(strings.TrimSpace(variant)) {
	case VariantSorted:
		return VariantSorted
	case VariantFixed:
		return VariantFixed
	default:
		return fallback
	}
}

func pickFirstNonEmpty(values ...string) string {
	for _, val := range values {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}
