package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aicover-pay/internal/cache"
	"github.com/aicover-pay/internal/constants"
	"github.com/aicover-pay/internal/models"
	"github.com/aicover-pay/internal/payment/stripe"
	"github.com/aicover-pay/internal/payment/wechatpay"
	"github.com/aicover-pay/internal/payment/yungouos"
	"github.com/aicover-pay/internal/queue"
	"github.com/aicover-pay/internal/repository"

	"gorm.io/gorm"
)

// ReconcileService 支付回调对账
type ReconcileService struct {
	orderRepo    repository.OrderRepository
	creditRepo   repository.CreditRepository
	queueClient  *queue.Client
	yungouos     *yungouos.Config
	verifyAmount bool
	stripe       *stripe.Config
	wechatpay    *wechatpay.Config
	now          func() time.Time
}

// ReconcileOptions 各提供方回调校验配置，未配置的提供方回调直接拒绝
type ReconcileOptions struct {
	YunGouOS     *yungouos.Config
	VerifyAmount bool
	Stripe       *stripe.Config
	WechatPay    *wechatpay.Config
}

// NewReconcileService 创建对账服务
func NewReconcileService(orderRepo repository.OrderRepository, creditRepo repository.CreditRepository, queueClient *queue.Client, opts ReconcileOptions) *ReconcileService {
	return &ReconcileService{
		orderRepo:    orderRepo,
		creditRepo:   creditRepo,
		queueClient:  queueClient,
		yungouos:     opts.YunGouOS,
		verifyAmount: opts.VerifyAmount,
		stripe:       opts.Stripe,
		wechatpay:    opts.WechatPay,
		now:          time.Now,
	}
}

// ReconcileResult 对账结果
type ReconcileResult struct {
	OrderNo   string
	EventType string
	Settled   bool // 本次完成 pending -> paid
	Duplicate bool // 订单此前已支付
	Ignored   bool // 非支付成功通知，仅应答
}

// HandleYunGouOSNotify 处理 YunGouOS 异步通知
func (s *ReconcileService) HandleYunGouOSNotify(ctx context.Context, fields map[string]string) (*ReconcileResult, error) {
	if s.yungouos == nil || strings.TrimSpace(s.yungouos.Key) == "" {
		return nil, fmt.Errorf("%w: yungouos", ErrPaymentProviderUnavailable)
	}
	log := paymentLogger("provider", constants.PaymentProviderYunGouOS, "out_trade_no", strings.TrimSpace(fields["outTradeNo"]))

	notification, err := yungouos.VerifyNotification(s.yungouos, fields)
	if err != nil {
		switch {
		case errors.Is(err, yungouos.ErrSignatureInvalid):
			log.Warnw("yungouos_notify_signature_mismatch")
			return nil, ErrSignatureMismatch
		case errors.Is(err, yungouos.ErrMerchantMismatch):
			log.Warnw("yungouos_notify_merchant_mismatch", "mch_id", strings.TrimSpace(fields["mchId"]))
			return nil, ErrMerchantMismatch
		default:
			return nil, fmt.Errorf("%w: %v", ErrPaymentProviderUnavailable, err)
		}
	}

	result := &ReconcileResult{OrderNo: notification.OutTradeNo, EventType: "code_" + notification.Code}
	if notification.Code != constants.YunGouOSPayCodeSuccess {
		log.Infow("yungouos_notify_not_success_ack", "code", notification.Code)
		result.Ignored = true
		return result, nil
	}

	order, err := s.loadOrder(notification.OutTradeNo)
	if err != nil {
		log.Warnw("yungouos_notify_order_lookup_failed", "error", err)
		return nil, err
	}
	if s.verifyAmount {
		paid, err := models.MajorToMinor(notification.Money)
		if err != nil || paid != order.Amount {
			log.Warnw("yungouos_notify_amount_mismatch", "money", notification.Money, "amount", order.Amount)
			return nil, fmt.Errorf("%w: money %s", ErrAmountMismatch, notification.Money)
		}
	}

	return s.settle(ctx, order, constants.PaymentProviderYunGouOS, s.now(), result)
}

// HandleStripeWebhook 处理 Stripe webhook
func (s *ReconcileService) HandleStripeWebhook(ctx context.Context, headers map[string]string, body []byte) (*ReconcileResult, error) {
	if s.stripe == nil || strings.TrimSpace(s.stripe.WebhookSecret) == "" {
		return nil, fmt.Errorf("%w: stripe", ErrPaymentProviderUnavailable)
	}
	event, err := stripe.VerifyAndParseWebhook(s.stripe, headers, body, s.now())
	if err != nil {
		if errors.Is(err, stripe.ErrSignatureInvalid) {
			paymentLogger("provider", constants.PaymentProviderStripe).Warnw("stripe_webhook_signature_mismatch", "error", err)
			return nil, ErrSignatureMismatch
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	log := paymentLogger("provider", constants.PaymentProviderStripe, "order_no", event.OrderNo, "event_type", event.EventType)
	result := &ReconcileResult{OrderNo: event.OrderNo, EventType: event.EventType}
	if event.Status != stripe.StatusSuccess {
		log.Infow("stripe_webhook_not_success_ack", "status", event.Status)
		result.Ignored = true
		return result, nil
	}
	if event.OrderNo == "" {
		log.Infow("stripe_webhook_missing_order_no_ack", "event_id", event.EventID)
		result.Ignored = true
		return result, nil
	}

	order, err := s.loadOrder(event.OrderNo)
	if err != nil {
		log.Warnw("stripe_webhook_order_lookup_failed", "error", err)
		return nil, err
	}
	if event.AmountMinor != order.Amount || (event.Currency != "" && event.Currency != order.Currency) {
		log.Warnw("stripe_webhook_amount_mismatch",
			"amount_total", event.AmountMinor,
			"currency", event.Currency,
			"amount", order.Amount,
		)
		return nil, fmt.Errorf("%w: amount_total %d", ErrAmountMismatch, event.AmountMinor)
	}
	if event.SessionID != "" {
		if err := s.orderRepo.SetSessionID(order.OrderNo, event.SessionID); err != nil {
			return nil, err
		}
	}
	return s.settle(ctx, order, constants.PaymentProviderStripe, s.now(), result)
}

// HandleWechatPayNotify 处理微信支付 v3 通知
func (s *ReconcileService) HandleWechatPayNotify(ctx context.Context, headers map[string]string, body []byte) (*ReconcileResult, error) {
	if s.wechatpay == nil || strings.TrimSpace(s.wechatpay.APIV3Key) == "" {
		return nil, fmt.Errorf("%w: wechatpay", ErrPaymentProviderUnavailable)
	}
	notice, err := wechatpay.VerifyAndDecodeWebhook(ctx, s.wechatpay, headers, body)
	if err != nil {
		if errors.Is(err, wechatpay.ErrSignatureInvalid) {
			paymentLogger("provider", constants.PaymentProviderWechatPay).Warnw("wechatpay_notify_signature_mismatch", "error", err)
			return nil, ErrSignatureMismatch
		}
		return nil, err
	}
	return s.reconcileWechatPay(ctx, notice)
}

func (s *ReconcileService) reconcileWechatPay(ctx context.Context, notice *wechatpay.WebhookResult) (*ReconcileResult, error) {
	log := paymentLogger("provider", constants.PaymentProviderWechatPay, "order_no", notice.OrderNo, "transaction_id", notice.TransactionID)
	result := &ReconcileResult{OrderNo: notice.OrderNo, EventType: notice.EventType}
	if notice.Status != wechatpay.StatusSuccess {
		log.Infow("wechatpay_notify_not_success_ack", "status", notice.Status)
		result.Ignored = true
		return result, nil
	}
	order, err := s.loadOrder(notice.OrderNo)
	if err != nil {
		log.Warnw("wechatpay_notify_order_lookup_failed", "error", err)
		return nil, err
	}
	if notice.AmountFen != order.Amount {
		log.Warnw("wechatpay_notify_amount_mismatch", "total", notice.AmountFen, "amount", order.Amount)
		return nil, fmt.Errorf("%w: total %d", ErrAmountMismatch, notice.AmountFen)
	}
	paidAt := s.now()
	if notice.PaidAt != nil {
		paidAt = *notice.PaidAt
	}
	return s.settle(ctx, order, constants.PaymentProviderWechatPay, paidAt, result)
}

func (s *ReconcileService) loadOrder(orderNo string) (*models.Order, error) {
	orderNo = strings.TrimSpace(orderNo)
	if orderNo == "" {
		return nil, fmt.Errorf("%w: empty order no", ErrOrderNotFound)
	}
	order, err := s.orderRepo.GetByOrderNo(orderNo)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, orderNo)
	}
	return order, nil
}

func (s *ReconcileService) settle(ctx context.Context, order *models.Order, provider string, paidAt time.Time, result *ReconcileResult) (*ReconcileResult, error) {
	log := paymentLogger("order_no", order.OrderNo, "provider", provider)
	settled, err := s.settleOrder(order, provider, paidAt)
	if err != nil {
		log.Errorw("order_settle_failed", "error", err)
		return nil, err
	}
	if !settled {
		log.Infow("order_settle_duplicate")
		result.Duplicate = true
		return result, nil
	}
	result.Settled = true
	if order.IsExpired(paidAt) {
		log.Warnw("order_settled_after_expiry", "expired_at", order.ExpiredAt)
	}
	log.Infow("order_paid", "credits", order.Credits, "user_email", order.UserEmail)
	s.afterOrderPaid(ctx, order, provider, paidAt)
	return result, nil
}

// settleOrder 在同一事务内完成状态迁移与积分发放，返回本次是否发生迁移
func (s *ReconcileService) settleOrder(order *models.Order, provider string, paidAt time.Time) (bool, error) {
	settled := false
	err := models.DB.Transaction(func(tx *gorm.DB) error {
		orderRepo := s.orderRepo.WithTx(tx)
		changed, err := orderRepo.MarkPaid(order.OrderNo, paidAt)
		if err != nil {
			return err
		}
		if !changed {
			current, err := orderRepo.GetByOrderNo(order.OrderNo)
			if err != nil {
				return err
			}
			if current != nil && current.IsPaid() {
				return nil
			}
			return fmt.Errorf("%w: %s", ErrOrderStateInvalid, order.OrderNo)
		}
		grant := &models.CreditGrant{
			OrderNo:   order.OrderNo,
			UserEmail: order.UserEmail,
			Credits:   order.Credits,
			Provider:  provider,
			CreatedAt: paidAt,
		}
		if err := s.creditRepo.WithTx(tx).CreateGrant(grant); err != nil {
			return err
		}
		settled = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return settled, nil
}

// afterOrderPaid 提交后刷新缓存并投递后续任务，失败只记录日志
func (s *ReconcileService) afterOrderPaid(ctx context.Context, order *models.Order, provider string, paidAt time.Time) {
	log := paymentLogger("order_no", order.OrderNo, "provider", provider)
	if err := cache.SetOrderPaid(ctx, cache.OrderPaidState{
		OrderNo:     order.OrderNo,
		OrderStatus: constants.OrderStatusPaid,
		PaidAt:      paidAt.Unix(),
	}); err != nil {
		log.Warnw("order_paid_cache_set_failed", "error", err)
	}
	if err := cache.InvalidateCreditSummary(ctx, order.UserEmail); err != nil {
		log.Warnw("credit_summary_invalidate_failed", "error", err)
	}
	if _, err := s.queueClient.EnqueueOrderPaid(ctx, queue.OrderPaidPayload{
		OrderNo:   order.OrderNo,
		UserEmail: order.UserEmail,
		Credits:   order.Credits,
		Provider:  provider,
		PaidAt:    paidAt.Unix(),
	}); err != nil {
		log.Warnw("order_paid_enqueue_failed", "error", err)
	}
}
