package repository

import (
	"errors"
	"strings"

	"github.com/aicover-pay/internal/models"

	"gorm.io/gorm"
)

// CreditRepository 积分流水数据访问接口
type CreditRepository interface {
	CreateGrant(grant *models.CreditGrant) error
	GetGrantByOrderNo(orderNo string) (*models.CreditGrant, error)
	SumGrantedByEmail(email string) (int64, error)
	SumUsedByEmail(email string) (int64, error)
	CreateUsage(usage *models.CreditUsage) error
	WithTx(tx *gorm.DB) *GormCreditRepository
}

// GormCreditRepository GORM 实现
type GormCreditRepository struct {
	db *gorm.DB
}

// NewCreditRepository 创建积分仓库
func NewCreditRepository(db *gorm.DB) *GormCreditRepository {
	return &GormCreditRepository{db: db}
}

// WithTx 绑定事务
func (r *GormCreditRepository) WithTx(tx *gorm.DB) *GormCreditRepository {
	if tx == nil {
		return r
	}
	return &GormCreditRepository{db: tx}
}

// CreateGrant 写入发放流水，order_no 唯一索引保证同一订单至多发放一次
func (r *GormCreditRepository) CreateGrant(grant *models.CreditGrant) error {
	return r.db.Create(grant).Error
}

// GetGrantByOrderNo 查询订单对应的发放流水
func (r *GormCreditRepository) GetGrantByOrderNo(orderNo string) (*models.CreditGrant, error) {
	var grant models.CreditGrant
	if err := r.db.Where("order_no = ?", strings.TrimSpace(orderNo)).First(&grant).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &grant, nil
}

// SumGrantedByEmail 统计用户累计获得积分
func (r *GormCreditRepository) SumGrantedByEmail(email string) (int64, error) {
	return r.sum(&models.CreditGrant{}, email)
}

// SumUsedByEmail 统计用户累计消耗积分
func (r *GormCreditRepository) SumUsedByEmail(email string) (int64, error) {
	return r.sum(&models.CreditUsage{}, email)
}

// CreateUsage 写入消耗记录
func (r *GormCreditRepository) CreateUsage(usage *models.CreditUsage) error {
	return r.db.Create(usage).Error
}

func (r *GormCreditRepository) sum(model interface{}, email string) (int64, error) {
	var total int64
	err := r.db.Model(model).
		Where("user_email = ?", strings.TrimSpace(email)).
		Select("COALESCE(SUM(credits), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}
