package repository

import (
	"testing"
	"time"

	"github.com/aicover-pay/internal/constants"
	"github.com/aicover-pay/internal/models"
)

func newPendingOrder(orderNo, email string) *models.Order {
	now := time.Now().UTC().Truncate(time.Second)
	return &models.Order{
		OrderNo:     orderNo,
		UserEmail:   email,
		Amount:      2025,
		Currency:    "cny",
		Plan:        constants.PlanOneTime,
		Credits:     80,
		OrderStatus: constants.OrderStatusPending,
		ExpiredAt:   now.AddDate(0, 1, 0),
		CreatedAt:   now,
	}
}

func TestOrderRepositoryGetByOrderNoMissing(t *testing.T) {
	repo := NewOrderRepository(openTestDB(t, "order_repo_missing"))

	order, err := repo.GetByOrderNo("AC-NOPE")
	if err != nil {
		t.Fatalf("get missing order failed: %v", err)
	}
	if order != nil {
		t.Fatalf("missing order should be nil, got %+v", order)
	}
	order, err = repo.GetByOrderNo("   ")
	if err != nil || order != nil {
		t.Fatalf("blank order no should be nil,nil got %+v %v", order, err)
	}
}

func TestOrderRepositoryMarkPaidOnlyOnce(t *testing.T) {
	repo := NewOrderRepository(openTestDB(t, "order_repo_mark_paid"))
	if err := repo.Create(newPendingOrder("AC001", "a@example.com")); err != nil {
		t.Fatalf("create order failed: %v", err)
	}

	paidAt := time.Now().UTC()
	changed, err := repo.MarkPaid("AC001", paidAt)
	if err != nil {
		t.Fatalf("first mark paid failed: %v", err)
	}
	if !changed {
		t.Fatalf("first mark paid should change the row")
	}
	changed, err = repo.MarkPaid("AC001", paidAt)
	if err != nil {
		t.Fatalf("second mark paid failed: %v", err)
	}
	if changed {
		t.Fatalf("second mark paid should be a no-op")
	}

	order, err := repo.GetByOrderNo("AC001")
	if err != nil || order == nil {
		t.Fatalf("reload order failed: %v", err)
	}
	if order.OrderStatus != constants.OrderStatusPaid {
		t.Fatalf("order status want paid got %d", order.OrderStatus)
	}
	if order.PaidAt == nil {
		t.Fatalf("paid_at should be set")
	}
}

func TestOrderRepositoryMarkPaidUnknownOrder(t *testing.T) {
	repo := NewOrderRepository(openTestDB(t, "order_repo_mark_unknown"))
	changed, err := repo.MarkPaid("AC-UNKNOWN", time.Now())
	if err != nil {
		t.Fatalf("mark paid unknown failed: %v", err)
	}
	if changed {
		t.Fatalf("unknown order must not report a change")
	}
}

func TestOrderRepositorySetSessionIDWriteOnce(t *testing.T) {
	repo := NewOrderRepository(openTestDB(t, "order_repo_session"))
	if err := repo.Create(newPendingOrder("AC002", "b@example.com")); err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	if err := repo.SetSessionID("AC002", "cs_first"); err != nil {
		t.Fatalf("set session failed: %v", err)
	}
	if err := repo.SetSessionID("AC002", "cs_second"); err != nil {
		t.Fatalf("set session again failed: %v", err)
	}
	order, _ := repo.GetByOrderNo("AC002")
	if order.SessionID != "cs_first" {
		t.Fatalf("session id should stay cs_first, got %s", order.SessionID)
	}
}

func TestOrderRepositoryListByUserEmail(t *testing.T) {
	repo := NewOrderRepository(openTestDB(t, "order_repo_list"))
	first := newPendingOrder("AC010", "c@example.com")
	second := newPendingOrder("AC011", "c@example.com")
	second.CreatedAt = first.CreatedAt.Add(time.Minute)
	other := newPendingOrder("AC012", "d@example.com")
	for _, o := range []*models.Order{first, second, other} {
		if err := repo.Create(o); err != nil {
			t.Fatalf("create order %s failed: %v", o.OrderNo, err)
		}
	}

	orders, err := repo.ListByUserEmail("c@example.com", 0)
	if err != nil {
		t.Fatalf("list orders failed: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("want 2 orders got %d", len(orders))
	}
	if orders[0].OrderNo != "AC011" {
		t.Fatalf("orders should be newest first, got %s", orders[0].OrderNo)
	}

	owned, err := repo.GetByOrderNoAndEmail("AC012", "c@example.com")
	if err != nil {
		t.Fatalf("get by order and email failed: %v", err)
	}
	if owned != nil {
		t.Fatalf("foreign order should not be visible")
	}
}
