package app

import (
	"errors"
	"net"

	"github.com/aicover-pay/internal/provider"
	"github.com/aicover-pay/internal/router"
	"github.com/aicover-pay/internal/worker"
)

// BuildRunner 按启动模式装配 HTTP 与队列消费者
func BuildRunner(opts Options) (*Runner, error) {
	opts, err := normalizeOptions(opts)
	if err != nil {
		return nil, err
	}
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	container := provider.NewContainer(cfg)
	var services []Service

	if opts.servesHTTP() {
		engine := router.SetupRouter(cfg, container)
		services = append(services, NewHTTPService(net.JoinHostPort(cfg.Server.Host, cfg.Server.Port), engine))
	}
	if opts.runsWorker() {
		workerService, err := worker.NewService(&cfg.Queue, worker.NewConsumer(container))
		if err != nil {
			container.Close()
			return nil, err
		}
		services = append(services, workerService)
	}
	if len(services) == 0 {
		container.Close()
		return nil, errors.New("no services initialized (check mode and config)")
	}

	runner := NewRunner(services...)
	runner.onClose = container.Close
	return runner, nil
}

// Run 应用启动入口
func Run(opts Options) error {
	opts, err := normalizeOptions(opts)
	if err != nil {
		return err
	}
	runner, err := BuildRunner(opts)
	if err != nil {
		return err
	}
	defer runner.Close()

	opts.Logger.Infow("app_start",
		"mode", opts.Mode,
		"http", opts.servesHTTP(),
		"worker", opts.runsWorker(),
		"services", runner.Names(),
	)
	return RunWithOptions(runner, opts)
}
