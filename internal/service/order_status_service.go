package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aicover-pay/internal/cache"
	"github.com/aicover-pay/internal/constants"
	"github.com/aicover-pay/internal/logger"
	"github.com/aicover-pay/internal/repository"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultPollTimeout  = 5 * time.Minute
	minPollInterval     = 50 * time.Millisecond
)

// OrderStatus 订单支付状态
type OrderStatus struct {
	Paid    bool   `json:"paid"`
	Status  int    `json:"status"`
	OrderNo string `json:"orderNo"`
}

// OrderStatusService 订单状态查询与等待
type OrderStatusService struct {
	orderRepo    repository.OrderRepository
	pollInterval time.Duration
	pollTimeout  time.Duration
}

// NewOrderStatusService 创建订单状态服务，interval/timeout 为等待接口的默认值与上限
func NewOrderStatusService(orderRepo repository.OrderRepository, interval, timeout time.Duration) *OrderStatusService {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if timeout <= 0 {
		timeout = defaultPollTimeout
	}
	return &OrderStatusService{
		orderRepo:    orderRepo,
		pollInterval: interval,
		pollTimeout:  timeout,
	}
}

// GetStatus 查询订单状态，只读
func (s *OrderStatusService) GetStatus(ctx context.Context, orderNo string) (*OrderStatus, error) {
	orderNo = strings.TrimSpace(orderNo)
	if orderNo == "" {
		return nil, ErrOrderNoRequired
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if state, hit, err := cache.GetOrderPaid(ctx, orderNo); err != nil {
		logger.Warnw("order_status_cache_get_failed", "order_no", orderNo, "error", err)
	} else if hit && state.OrderStatus == constants.OrderStatusPaid {
		return &OrderStatus{Paid: true, Status: state.OrderStatus, OrderNo: orderNo}, nil
	}

	order, err := s.orderRepo.GetByOrderNo(orderNo)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, orderNo)
	}
	status := &OrderStatus{
		Paid:    order.IsPaid(),
		Status:  order.OrderStatus,
		OrderNo: order.OrderNo,
	}
	if status.Paid && order.PaidAt != nil {
		_ = cache.SetOrderPaid(ctx, cache.OrderPaidState{
			OrderNo:     order.OrderNo,
			OrderStatus: order.OrderStatus,
			PaidAt:      order.PaidAt.Unix(),
		})
	}
	return status, nil
}

// WaitPaid 周期查询直到已支付、超时或 ctx 取消
// 超时返回最后一次状态与 ErrPollTimeout，取消返回 ctx.Err()
func (s *OrderStatusService) WaitPaid(ctx context.Context, orderNo string, interval, timeout time.Duration) (*OrderStatus, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	interval, timeout = s.clampPoll(interval, timeout)

	status, err := s.GetStatus(ctx, orderNo)
	if err != nil || status.Paid {
		return status, err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return status, ctx.Err()
		case <-deadline.C:
			return status, ErrPollTimeout
		case <-ticker.C:
			next, err := s.GetStatus(ctx, orderNo)
			if err != nil {
				return status, err
			}
			status = next
			if status.Paid {
				return status, nil
			}
		}
	}
}

func (s *OrderStatusService) clampPoll(interval, timeout time.Duration) (time.Duration, time.Duration) {
	if interval <= 0 {
		interval = s.pollInterval
	}
	if interval < minPollInterval {
		interval = minPollInterval
	}
	if timeout <= 0 || timeout > s.pollTimeout {
		timeout = s.pollTimeout
	}
	return interval, timeout
}
