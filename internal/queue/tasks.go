package queue

import (
	"encoding/json"

	"github.com/aicover-pay/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskOrderPaid 订单支付成功后续任务
	TaskOrderPaid = constants.TaskOrderPaid
)

// OrderPaidPayload 订单支付成功任务载荷
type OrderPaidPayload struct {
	OrderNo   string `json:"order_no"`
	UserEmail string `json:"user_email"`
	Credits   int    `json:"credits"`
	Provider  string `json:"provider"`
	PaidAt    int64  `json:"paid_at"`
}

// NewOrderPaidTask 创建订单支付成功任务
func NewOrderPaidTask(payload OrderPaidPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOrderPaid, body), nil
}
