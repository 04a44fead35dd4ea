package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/aicover-pay/internal/config"
	"github.com/aicover-pay/internal/logger"
	"github.com/aicover-pay/internal/queue"

	"github.com/hibiken/asynq"
)

// Service 订单后续任务消费服务
type Service struct {
	server *asynq.Server
	mux    *asynq.ServeMux

	stopOnce sync.Once
}

// NewService 创建消费服务，队列未启用时返回错误
func NewService(cfg *config.QueueConfig, consumer *Consumer) (*Service, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, errors.New("queue disabled")
	}
	if consumer == nil {
		return nil, errors.New("consumer is nil")
	}
	opt, serverCfg := queue.BuildServerConfig(cfg)
	mux := asynq.NewServeMux()
	mux.Use(logTask)
	consumer.Register(mux)
	return &Service{server: asynq.NewServer(opt, serverCfg), mux: mux}, nil
}

func (s *Service) Name() string { return "worker" }

// Start 启动消费并阻塞到 ctx 结束
// 信号由 Runner 统一处理，这里不使用 asynq 自带的信号等待
func (s *Service) Start(ctx context.Context) error {
	if s == nil || s.server == nil || s.mux == nil {
		return errors.New("worker not initialized")
	}
	if err := s.server.Start(s.mux); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

// Stop 等待进行中的任务结束
func (s *Service) Stop(_ context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	s.stopOnce.Do(s.server.Shutdown)
	return nil
}

// logTask 记录每个任务的耗时与结果
func logTask(next asynq.Handler) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, task *asynq.Task) error {
		start := time.Now()
		taskID, _ := asynq.GetTaskID(ctx)
		err := next.ProcessTask(ctx, task)
		log := logger.SW("type", task.Type(), "task_id", taskID, "cost", time.Since(start))
		if err != nil {
			log.Warnw("worker_task_error", "error", err)
			return err
		}
		log.Debugw("worker_task_done")
		return nil
	})
}
