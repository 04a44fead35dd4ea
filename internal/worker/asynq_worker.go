package worker

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/aicover-pay/internal/logger"
	"github.com/aicover-pay/internal/provider"
	"github.com/aicover-pay/internal/queue"

	"github.com/hibiken/asynq"
)

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskOrderPaid, c.handleOrderPaid)
}

// handleOrderPaid 到账后重算积分汇总并留存审计日志
func (c *Consumer) handleOrderPaid(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_order_paid_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.OrderPaidPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_order_paid_unmarshal_failed", "error", err)
		return err
	}
	orderNo := strings.TrimSpace(payload.OrderNo)
	if orderNo == "" {
		logger.Debugw("worker_order_paid_skip_invalid_payload")
		return nil
	}
	order, err := c.OrderRepo.GetByOrderNo(orderNo)
	if err != nil {
		logger.Warnw("worker_order_paid_fetch_order_failed", "order_no", orderNo, "error", err)
		return err
	}
	if order == nil || !order.IsPaid() {
		logger.Warnw("worker_order_paid_skip_order_not_paid", "order_no", orderNo, "found", order != nil)
		return nil
	}
	grant, err := c.CreditRepo.GetGrantByOrderNo(orderNo)
	if err != nil {
		logger.Warnw("worker_order_paid_fetch_grant_failed", "order_no", orderNo, "error", err)
		return err
	}
	if grant == nil {
		logger.Errorw("worker_order_paid_grant_missing", "order_no", orderNo, "user_email", order.UserEmail)
		return nil
	}
	summary, err := c.CreditService.RefreshSummary(ctx, order.UserEmail)
	if err != nil {
		logger.Warnw("worker_order_paid_refresh_summary_failed", "order_no", orderNo, "error", err)
		return err
	}
	logger.Infow("worker_order_paid_processed",
		"order_no", orderNo,
		"user_email", order.UserEmail,
		"provider", payload.Provider,
		"credits", grant.Credits,
		"left_credits", summary.LeftCredits,
	)
	return nil
}
