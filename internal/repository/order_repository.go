package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/aicover-pay/internal/constants"
	"github.com/aicover-pay/internal/models"

	"gorm.io/gorm"
)

// OrderRepository 订单数据访问接口
type OrderRepository interface {
	Create(order *models.Order) error
	GetByOrderNo(orderNo string) (*models.Order, error)
	GetByOrderNoAndEmail(orderNo, email string) (*models.Order, error)
	ListByUserEmail(email string, limit int) ([]models.Order, error)
	SetSessionID(orderNo, sessionID string) error
	MarkPaid(orderNo string, paidAt time.Time) (bool, error)
	WithTx(tx *gorm.DB) *GormOrderRepository
}

// GormOrderRepository GORM 实现
type GormOrderRepository struct {
	db *gorm.DB
}

// NewOrderRepository 创建订单仓库
func NewOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// WithTx 绑定事务
func (r *GormOrderRepository) WithTx(tx *gorm.DB) *GormOrderRepository {
	if tx == nil {
		return r
	}
	return &GormOrderRepository{db: tx}
}

// Create 创建订单
func (r *GormOrderRepository) Create(order *models.Order) error {
	return r.db.Create(order).Error
}

// GetByOrderNo 根据订单号获取订单，不存在时返回 nil
func (r *GormOrderRepository) GetByOrderNo(orderNo string) (*models.Order, error) {
	orderNo = strings.TrimSpace(orderNo)
	if orderNo == "" {
		return nil, nil
	}
	var order models.Order
	if err := r.db.Where("order_no = ?", orderNo).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// GetByOrderNoAndEmail 获取指定用户的订单
func (r *GormOrderRepository) GetByOrderNoAndEmail(orderNo, email string) (*models.Order, error) {
	var order models.Order
	err := r.db.Where("order_no = ? AND user_email = ?", strings.TrimSpace(orderNo), strings.TrimSpace(email)).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// ListByUserEmail 按创建时间倒序列出用户订单
func (r *GormOrderRepository) ListByUserEmail(email string, limit int) ([]models.Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var orders []models.Order
	err := r.db.Where("user_email = ?", strings.TrimSpace(email)).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// SetSessionID 写入第三方支付会话，只在为空时生效
func (r *GormOrderRepository) SetSessionID(orderNo, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil
	}
	return r.db.Model(&models.Order{}).
		Where("order_no = ? AND (session_id IS NULL OR session_id = '')", orderNo).
		Updates(map[string]interface{}{
			"session_id": sessionID,
			"updated_at": time.Now(),
		}).Error
}

// MarkPaid 条件更新 pending -> paid，返回是否由本次调用完成流转
func (r *GormOrderRepository) MarkPaid(orderNo string, paidAt time.Time) (bool, error) {
	result := r.db.Model(&models.Order{}).
		Where("order_no = ? AND order_status = ?", orderNo, constants.OrderStatusPending).
		Updates(map[string]interface{}{
			"order_status": constants.OrderStatusPaid,
			"paid_at":      paidAt,
			"updated_at":   time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
