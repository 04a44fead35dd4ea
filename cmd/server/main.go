package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/aicover-pay/internal/app"
	"github.com/aicover-pay/internal/config"
	"github.com/aicover-pay/internal/logger"
	"github.com/aicover-pay/internal/models"

	"github.com/gin-gonic/gin"
)

const (
	ansiReset = "\033[0m"
	ansiBold  = "\033[1m"
	ansiDim   = "\033[2m"
	ansiCyan  = "\033[36m"
	ansiMag   = "\033[95m"
)

var weakSecretMarkers = []string{"change-me", "change-in-production", "your-secret-key"}

func main() {
	var (
		mode        string
		migrateOnly bool
		shutdown    time.Duration
	)
	flag.StringVar(&mode, "mode", app.ModeAll, "启动模式: all (默认), api, worker")
	flag.BoolVar(&migrateOnly, "migrate-only", false, "仅执行数据库迁移后退出")
	flag.DurationVar(&shutdown, "shutdown-timeout", 10*time.Second, "优雅退出等待时间")
	flag.Parse()

	// 启动前校验模式，避免无效参数时连接外部依赖
	mode, err := app.ParseMode(mode)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	printStartupBanner(mode)

	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	defer logger.Sync()
	stdLog := logger.StdLogger()

	if err := checkSecrets(cfg); err != nil {
		stdLog.Fatalf("配置校验失败: %v", err)
	}
	if err := openDatabase(cfg); err != nil {
		stdLog.Fatalf("数据库初始化失败: %v", err)
	}
	if migrateOnly {
		logger.Infow("server_migrate_only_done", "driver", cfg.Database.Driver)
		return
	}

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := app.Run(app.Options{
		Config:          cfg,
		Logger:          logger.S(),
		Signals:         []os.Signal{syscall.SIGINT, syscall.SIGTERM},
		ShutdownTimeout: shutdown,
		Mode:            mode,
	}); err != nil {
		stdLog.Fatalf("服务运行失败: %v", err)
	}
}

// checkSecrets release 模式下拒绝弱 JWT 密钥，其余模式仅告警
func checkSecrets(cfg *config.Config) error {
	if !isWeakSecret(cfg.JWT.SecretKey) {
		return nil
	}
	if cfg.Server.Mode == "release" {
		return errors.New("JWT secret 过弱或仍为默认值，请配置强随机密钥")
	}
	logger.Warnw("server_weak_jwt_secret", "mode", cfg.Server.Mode)
	return nil
}

func openDatabase(cfg *config.Config) error {
	pool := models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, pool, cfg.Server.Mode != "release"); err != nil {
		return err
	}
	if err := models.AutoMigrate(); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

func isWeakSecret(secret string) bool {
	if len(secret) < 32 {
		return true
	}
	normalized := strings.ToLower(secret)
	for _, marker := range weakSecretMarkers {
		if strings.Contains(normalized, marker) {
			return true
		}
	}
	return false
}

func printStartupBanner(mode string) {
	fmt.Println(ansiMag + ansiBold + "aicover-pay · AI credits checkout" + ansiReset)
	fmt.Println(ansiCyan + "  checkout : POST /api/checkout" + ansiReset)
	fmt.Println(ansiCyan + "  status   : GET  /api/orders/wechat/status[/wait]" + ansiReset)
	fmt.Println(ansiCyan + "  webhooks : POST /api/webhook/{wechat,stripe,wechatpay}" + ansiReset)
	fmt.Println(ansiDim + "  mode     : " + mode + ansiReset)
}
