package queue

import (
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/aicover-pay/internal/config"
	"github.com/aicover-pay/internal/constants"
	"github.com/aicover-pay/internal/logger"

	"github.com/hibiken/asynq"
)

// DefaultQueue 默认队列名称
const DefaultQueue = constants.QueueDefault

const (
	defaultConcurrency = 10
	orderPaidMaxRetry  = 5
	// 任务完成后保留 ID，重复回调在保留期内不会再次入队
	orderPaidRetention = 24 * time.Hour
	maxRetryDelay      = 10 * time.Minute
)

// Client 订单后续任务投递端，未启用队列时所有投递都是空操作
type Client struct {
	client *asynq.Client
	queue  string
}

// NewClient 创建队列客户端
func NewClient(cfg *config.QueueConfig) (*Client, error) {
	if cfg == nil || !cfg.Enabled {
		return &Client{queue: DefaultQueue}, nil
	}
	return &Client{client: asynq.NewClient(redisOpt(cfg)), queue: DefaultQueue}, nil
}

// Enabled 判断是否启用
func (c *Client) Enabled() bool {
	return c != nil && c.client != nil
}

// Close 关闭客户端
func (c *Client) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.client.Close()
}

// OrderPaidTaskID 同一订单号共享任务 ID
func OrderPaidTaskID(orderNo string) string {
	return TaskOrderPaid + ":" + orderNo
}

// EnqueueOrderPaid 投递订单支付成功任务
// 返回 false 表示队列未启用或同一订单已入队
func (c *Client) EnqueueOrderPaid(ctx context.Context, payload OrderPaidPayload) (bool, error) {
	if !c.Enabled() {
		return false, nil
	}
	if strings.TrimSpace(payload.OrderNo) == "" {
		return false, errors.New("order_no is required")
	}
	task, err := NewOrderPaidTask(payload)
	if err != nil {
		return false, err
	}
	info, err := c.client.EnqueueContext(ctx, task,
		asynq.Queue(c.queue),
		asynq.TaskID(OrderPaidTaskID(payload.OrderNo)),
		asynq.MaxRetry(orderPaidMaxRetry),
		asynq.Retention(orderPaidRetention),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	logger.Debugw("queue_order_paid_enqueued", "order_no", payload.OrderNo, "task_id", info.ID, "queue", info.Queue)
	return true, nil
}

// BuildServerConfig 生成消费端配置
func BuildServerConfig(cfg *config.QueueConfig) (asynq.RedisClientOpt, asynq.Config) {
	serverCfg := asynq.Config{
		Concurrency:    defaultConcurrency,
		Queues:         map[string]int{DefaultQueue: 1},
		RetryDelayFunc: retryDelay,
		ErrorHandler:   asynq.ErrorHandlerFunc(logTaskFailure),
	}
	if cfg != nil && cfg.Concurrency > 0 {
		serverCfg.Concurrency = cfg.Concurrency
	}
	if cfg != nil && len(cfg.Queues) > 0 {
		serverCfg.Queues = cfg.Queues
	}
	return redisOpt(cfg), serverCfg
}

// retryDelay 指数退避，封顶 maxRetryDelay
func retryDelay(n int, _ error, _ *asynq.Task) time.Duration {
	if n < 0 {
		n = 0
	}
	if n > 10 {
		return maxRetryDelay
	}
	delay := time.Duration(1<<uint(n)) * 5 * time.Second
	if delay > maxRetryDelay {
		return maxRetryDelay
	}
	return delay
}

func logTaskFailure(ctx context.Context, task *asynq.Task, err error) {
	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	logger.Warnw("queue_task_failed", "type", task.Type(), "retried", retried, "max_retry", maxRetry, "error", err)
}

func redisOpt(cfg *config.QueueConfig) asynq.RedisClientOpt {
	host, port := "127.0.0.1", 6379
	opt := asynq.RedisClientOpt{}
	if cfg != nil {
		if h := strings.TrimSpace(cfg.Host); h != "" {
			host = h
		}
		if cfg.Port > 0 {
			port = cfg.Port
		}
		opt.Password = cfg.Password
		opt.DB = cfg.DB
	}
	opt.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	return opt
}
