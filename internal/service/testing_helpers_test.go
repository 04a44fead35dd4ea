package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aicover-pay/internal/constants"
	"github.com/aicover-pay/internal/models"
	"github.com/aicover-pay/internal/repository"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupServiceTestDB(t *testing.T, name string) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db failed: %v", err)
	}
	// 单连接串行化写事务，避免共享缓存下的表锁冲突
	sqlDB.SetMaxOpenConns(1)
	if err := models.Migrate(db); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	models.DB = db
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	return db
}

func createPendingOrder(t *testing.T, db *gorm.DB, orderNo string, amount int64, currency string) *models.Order {
	t.Helper()
	now := time.Now()
	order := &models.Order{
		OrderNo:     orderNo,
		UserEmail:   "buyer@example.com",
		Amount:      amount,
		Currency:    currency,
		Plan:        constants.PlanOneTime,
		Credits:     100,
		OrderStatus: constants.OrderStatusPending,
		Provider:    constants.PaymentProviderYunGouOS,
		CreatedAt:   now,
		ExpiredAt:   now.AddDate(0, 1, 0),
	}
	if err := repository.NewOrderRepository(db).Create(order); err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	return order
}

// fakeProvider 记录调用次数的提供方桩
type fakeProvider struct {
	name        string
	paymentType string
	payment     *ProviderPayment
	err         error
	calls       atomic.Int32
	lastOrder   *models.Order
}

func (f *fakeProvider) Name() string        { return f.name }
func (f *fakeProvider) PaymentType() string { return f.paymentType }

func (f *fakeProvider) CreatePayment(ctx context.Context, order *models.Order, _ CreateOptions) (*ProviderPayment, error) {
	f.calls.Add(1)
	f.lastOrder = order
	if _, ok := ctx.Deadline(); !ok {
		return nil, fmt.Errorf("provider call without deadline")
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.payment, nil
}
