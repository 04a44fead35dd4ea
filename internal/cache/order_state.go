package cache

import (
	"context"
	"strings"
	"time"
)

const (
	orderPaidTTL     = 24 * time.Hour
	creditSummaryTTL = 10 * time.Minute
)

// OrderPaidState 已支付订单快照，支付状态只会前进，可安全缓存
type OrderPaidState struct {
	OrderNo     string `json:"order_no"`
	OrderStatus int    `json:"order_status"`
	PaidAt      int64  `json:"paid_at"`
}

// CreditSummary 用户积分汇总快照
type CreditSummary struct {
	TotalCredits int64 `json:"total_credits"`
	UsedCredits  int64 `json:"used_credits"`
	LeftCredits  int64 `json:"left_credits"`
}

func orderPaidKey(orderNo string) string {
	return "order:paid:" + strings.TrimSpace(orderNo)
}

func creditSummaryKey(email string) string {
	return "credits:" + strings.ToLower(strings.TrimSpace(email))
}

// SetOrderPaid 写入已支付快照
func SetOrderPaid(ctx context.Context, state OrderPaidState) error {
	if strings.TrimSpace(state.OrderNo) == "" {
		return nil
	}
	return SetJSON(ctx, orderPaidKey(state.OrderNo), state, orderPaidTTL)
}

// GetOrderPaid 读取已支付快照
func GetOrderPaid(ctx context.Context, orderNo string) (*OrderPaidState, bool, error) {
	var state OrderPaidState
	hit, err := GetJSON(ctx, orderPaidKey(orderNo), &state)
	if err != nil || !hit {
		return nil, false, err
	}
	return &state, true, nil
}

// SetCreditSummary 写入积分汇总
func SetCreditSummary(ctx context.Context, email string, summary CreditSummary) error {
	return SetJSON(ctx, creditSummaryKey(email), summary, creditSummaryTTL)
}

// GetCreditSummary 读取积分汇总
func GetCreditSummary(ctx context.Context, email string) (*CreditSummary, bool, error) {
	var summary CreditSummary
	hit, err := GetJSON(ctx, creditSummaryKey(email), &summary)
	if err != nil || !hit {
		return nil, false, err
	}
	return &summary, true, nil
}

// InvalidateCreditSummary 删除积分汇总
func InvalidateCreditSummary(ctx context.Context, email string) error {
	return Del(ctx, creditSummaryKey(email))
}
