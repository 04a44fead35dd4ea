package worker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aicover-pay/internal/config"
	"github.com/aicover-pay/internal/models"
	"github.com/aicover-pay/internal/provider"
	"github.com/aicover-pay/internal/queue"

	"github.com/glebarez/sqlite"
	"github.com/hibiken/asynq"
	"gorm.io/gorm"
)

func setupWorkerTest(t *testing.T) *Consumer {
	t.Helper()
	dsn := fmt.Sprintf("file:worker_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db failed: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := models.Migrate(db); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	models.DB = db

	cfg := config.Default()
	return NewConsumer(provider.NewContainer(cfg))
}

func TestHandleOrderPaidRefreshesSummary(t *testing.T) {
	consumer := setupWorkerTest(t)
	paidAt := time.Now()
	order := &models.Order{
		OrderNo: "AC20250101120000000900", UserEmail: "buyer@example.com", Amount: 2025,
		Currency: "cny", Plan: "one-time", Credits: 100, OrderStatus: 2, Provider: "yungouos", PaidAt: &paidAt,
	}
	if err := consumer.OrderRepo.Create(order); err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	if err := consumer.CreditRepo.CreateGrant(&models.CreditGrant{
		OrderNo: order.OrderNo, UserEmail: order.UserEmail, Credits: 100, Provider: "yungouos",
	}); err != nil {
		t.Fatalf("create grant failed: %v", err)
	}

	task, err := queue.NewOrderPaidTask(queue.OrderPaidPayload{OrderNo: order.OrderNo, UserEmail: order.UserEmail, Credits: 100, Provider: "yungouos"})
	if err != nil {
		t.Fatalf("build task failed: %v", err)
	}
	if err := consumer.handleOrderPaid(context.Background(), task); err != nil {
		t.Fatalf("handle order paid failed: %v", err)
	}
}

func TestHandleOrderPaidSkipsPendingOrder(t *testing.T) {
	consumer := setupWorkerTest(t)
	order := &models.Order{
		OrderNo: "AC20250101120000000901", UserEmail: "buyer@example.com", Amount: 100,
		Currency: "usd", Plan: "one-time", Credits: 10, OrderStatus: 1,
	}
	if err := consumer.OrderRepo.Create(order); err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	task, _ := queue.NewOrderPaidTask(queue.OrderPaidPayload{OrderNo: order.OrderNo})
	if err := consumer.handleOrderPaid(context.Background(), task); err != nil {
		t.Fatalf("pending order should be skipped, got %v", err)
	}
}

func TestHandleOrderPaidSkipsEmptyOrderNo(t *testing.T) {
	consumer := setupWorkerTest(t)
	task, _ := queue.NewOrderPaidTask(queue.OrderPaidPayload{OrderNo: "  "})
	if err := consumer.handleOrderPaid(context.Background(), task); err != nil {
		t.Fatalf("empty order no should be skipped, got %v", err)
	}
	var nilConsumer *Consumer
	if err := nilConsumer.handleOrderPaid(context.Background(), task); err != nil {
		t.Fatalf("nil consumer should be skipped, got %v", err)
	}
}

func TestNewServiceRequiresQueue(t *testing.T) {
	if _, err := NewService(&config.QueueConfig{Enabled: false}, &Consumer{}); err == nil {
		t.Fatalf("disabled queue should fail to build worker service")
	}
	if _, err := NewService(&config.QueueConfig{Enabled: true}, nil); err == nil {
		t.Fatalf("nil consumer should fail to build worker service")
	}
}

func TestLogTaskPassesThroughResult(t *testing.T) {
	boom := errors.New("boom")
	failing := logTask(asynq.HandlerFunc(func(context.Context, *asynq.Task) error { return boom }))
	if err := failing.ProcessTask(context.Background(), asynq.NewTask(queue.TaskOrderPaid, nil)); !errors.Is(err, boom) {
		t.Fatalf("middleware should return handler error, got %v", err)
	}
	ok := logTask(asynq.HandlerFunc(func(context.Context, *asynq.Task) error { return nil }))
	if err := ok.ProcessTask(context.Background(), asynq.NewTask(queue.TaskOrderPaid, nil)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
