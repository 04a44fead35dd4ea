package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"net/mail"
	"strings"
	"time"

	"github.com/aicover-pay/internal/constants"
	"github.com/aicover-pay/internal/logger"
	"github.com/aicover-pay/internal/models"
	"github.com/aicover-pay/internal/repository"

	"go.uber.org/zap"
)

const (
	orderNoPrefix         = "AC"
	defaultRequestTimeout = 15 * time.Second
)

var orderNoSuffixMax = big.NewInt(1000000)

// CheckoutService 下单与支付分发
type CheckoutService struct {
	orderRepo repository.OrderRepository
	registry  *ProviderRegistry
	timeout   time.Duration
	now       func() time.Time
}

// NewCheckoutService 创建下单服务
func NewCheckoutService(orderRepo repository.OrderRepository, registry *ProviderRegistry, timeout time.Duration) *CheckoutService {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &CheckoutService{
		orderRepo: orderRepo,
		registry:  registry,
		timeout:   timeout,
		now:       time.Now,
	}
}

// CheckoutInput 下单请求
type CheckoutInput struct {
	UserEmail string
	PriceRef  string
	Plan      string
	Amount    int64
	Currency  string
	Credits   int
	ReturnURL string
	ClientIP  string
}

// CheckoutResult 下单结果，按支付类型返回二维码或会话信息
type CheckoutResult struct {
	PaymentType string `json:"payment_type"`
	OrderNo     string `json:"order_no"`
	QRCode      string `json:"qr_code,omitempty"`
	QRURL       string `json:"qr_url,omitempty"`
	PublicKey   string `json:"public_key,omitempty"`
	SessionID   string `json:"session_id,omitempty"`
}

// ProviderError 提供方下单失败，携带支付类型以便选择对外提示
type ProviderError struct {
	Provider    string
	PaymentType string
	Err         error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrPaymentProviderError, e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() []error {
	return []error{ErrPaymentProviderError, e.Err}
}

// CreateCheckout 创建待支付订单并调用对应提供方
func (s *CheckoutService) CreateCheckout(ctx context.Context, input CheckoutInput) (*CheckoutResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	input, err := normalizeCheckoutInput(input)
	if err != nil {
		return nil, err
	}

	provider, err := s.registry.Resolve(input.Currency)
	if err != nil {
		return nil, err
	}

	now := s.now()
	orderNo, err := generateOrderNo(now)
	if err != nil {
		return nil, err
	}
	order := &models.Order{
		OrderNo:     orderNo,
		UserEmail:   input.UserEmail,
		Amount:      input.Amount,
		Currency:    input.Currency,
		Plan:        input.Plan,
		Credits:     input.Credits,
		PriceRef:    input.PriceRef,
		OrderStatus: constants.OrderStatusPending,
		Provider:    provider.Name(),
		CreatedAt:   now,
		ExpiredAt:   now.AddDate(0, 1, 0),
	}
	if err := s.orderRepo.Create(order); err != nil {
		return nil, err
	}
	log := paymentLogger("order_no", orderNo, "provider", provider.Name())
	log.Infow("checkout_order_created",
		"user_email", order.UserEmail,
		"amount", order.Amount,
		"currency", order.Currency,
		"plan", order.Plan,
		"credits", order.Credits,
	)

	reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	payment, err := provider.CreatePayment(reqCtx, order, CreateOptions{
		ReturnURL: input.ReturnURL,
		ClientIP:  input.ClientIP,
	})
	if err != nil {
		log.Errorw("checkout_provider_failed", "error", err)
		return nil, &ProviderError{Provider: provider.Name(), PaymentType: provider.PaymentType(), Err: err}
	}

	if sessionID := strings.TrimSpace(payment.SessionID); sessionID != "" {
		if err := s.orderRepo.SetSessionID(orderNo, sessionID); err != nil {
			log.Errorw("checkout_session_persist_failed", "session_id", sessionID, "error", err)
			return nil, err
		}
	}
	log.Infow("checkout_payment_created", "session_id", payment.SessionID, "has_qr", payment.QRCode != "")

	return &CheckoutResult{
		PaymentType: provider.PaymentType(),
		OrderNo:     orderNo,
		QRCode:      payment.QRCode,
		QRURL:       payment.QRURL,
		PublicKey:   payment.PublicKey,
		SessionID:   payment.SessionID,
	}, nil
}

func normalizeCheckoutInput(input CheckoutInput) (CheckoutInput, error) {
	input.UserEmail = strings.TrimSpace(input.UserEmail)
	input.Currency = strings.ToLower(strings.TrimSpace(input.Currency))
	input.Plan = strings.ToLower(strings.TrimSpace(input.Plan))
	input.PriceRef = strings.TrimSpace(input.PriceRef)
	input.ReturnURL = strings.TrimSpace(input.ReturnURL)
	if input.UserEmail == "" || input.Amount <= 0 || input.Credits <= 0 || input.Currency == "" || input.Plan == "" {
		return input, ErrInvalidParams
	}
	if _, err := mail.ParseAddress(input.UserEmail); err != nil {
		return input, fmt.Errorf("%w: email", ErrInvalidParams)
	}
	switch input.Plan {
	case constants.PlanOneTime, constants.PlanMonthly:
	default:
		return input, ErrInvalidPlan
	}
	return input, nil
}

// generateOrderNo AC + 14 位时间 + 6 位随机数
func generateOrderNo(now time.Time) (string, error) {
	n, err := rand.Int(rand.Reader, orderNoSuffixMax)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%s%06d", orderNoPrefix, now.Format("20060102150405"), n.Int64()), nil
}

func paymentLogger(kv ...interface{}) *zap.SugaredLogger {
	if len(kv) == 0 {
		return logger.S()
	}
	return logger.SW(kv...)
}
