package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/aicover-pay/internal/config"
	"github.com/aicover-pay/internal/constants"
	"github.com/aicover-pay/internal/logger"
	"github.com/aicover-pay/internal/models"
	"github.com/aicover-pay/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"
)

// 本地联调用：写入演示订单与积分，并签发演示用户令牌
func main() {
	var email string
	flag.StringVar(&email, "email", "demo@aicover.local", "演示用户邮箱")
	flag.Parse()

	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}, false); err != nil {
		stdLog.Fatalf("Failed to connect database: %v", err)
	}
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("Failed to migrate database: %v", err)
	}

	now := time.Now()
	paidAt := now.Add(-time.Hour)
	orders := []models.Order{
		{
			OrderNo:     "AC" + now.Format("20060102") + "000000000001",
			UserEmail:   email,
			Amount:      2990,
			Currency:    "cny",
			Plan:        constants.PlanOneTime,
			Credits:     300,
			OrderStatus: constants.OrderStatusPaid,
			Provider:    constants.PaymentProviderYunGouOS,
			PaidAt:      &paidAt,
			ExpiredAt:   now.AddDate(0, 1, 0),
		},
		{
			OrderNo:     "AC" + now.Format("20060102") + "000000000002",
			UserEmail:   email,
			Amount:      990,
			Currency:    "usd",
			Plan:        constants.PlanMonthly,
			Credits:     100,
			OrderStatus: constants.OrderStatusPending,
			Provider:    constants.PaymentProviderStripe,
			ExpiredAt:   now.AddDate(0, 1, 0),
		},
	}

	for _, order := range orders {
		order := order
		err := models.DB.Transaction(func(tx *gorm.DB) error {
			orderRepo := repository.NewOrderRepository(models.DB).WithTx(tx)
			existing, err := orderRepo.GetByOrderNo(order.OrderNo)
			if err != nil {
				return err
			}
			if existing != nil {
				stdLog.Printf("Order already exists: %s", order.OrderNo)
				return nil
			}
			if err := orderRepo.Create(&order); err != nil {
				return err
			}
			if !order.IsPaid() {
				return nil
			}
			return repository.NewCreditRepository(models.DB).WithTx(tx).CreateGrant(&models.CreditGrant{
				OrderNo:   order.OrderNo,
				UserEmail: order.UserEmail,
				Credits:   order.Credits,
				Provider:  order.Provider,
			})
		})
		if err != nil {
			stdLog.Printf("Failed to seed order %s: %v", order.OrderNo, err)
			continue
		}
		stdLog.Printf("Seeded order: %s status=%d", order.OrderNo, order.OrderStatus)
	}

	claim := cfg.JWT.EmailClaim
	if claim == "" {
		claim = "email"
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		claim: email,
		"iat": now.Unix(),
		"exp": now.Add(24 * time.Hour).Unix(),
	}).SignedString([]byte(cfg.JWT.SecretKey))
	if err != nil {
		stdLog.Fatalf("Failed to sign demo token: %v", err)
	}
	fmt.Printf("Authorization: Bearer %s\n", token)
}
