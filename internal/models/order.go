package models

import (
	"time"

	"github.com/aicover-pay/internal/constants"
)

// Order 积分购买订单表
type Order struct {
	ID          uint       `gorm:"primarykey" json:"id"`                                  // 主键
	OrderNo     string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"order_no"` // 订单编号
	UserEmail   string     `gorm:"type:varchar(255);index;not null" json:"user_email"`    // 下单用户邮箱
	Amount      int64      `gorm:"not null" json:"amount"`                                // 金额（最小货币单位，分/美分）
	Currency    string     `gorm:"type:varchar(16);not null" json:"currency"`             // 币种（小写）
	Plan        string     `gorm:"type:varchar(32);not null" json:"plan"`                 // 套餐类型 one-time / monthly
	Credits     int        `gorm:"not null" json:"credits"`                               // 支付成功后发放的积分
	PriceRef    string     `gorm:"type:varchar(128)" json:"price_ref,omitempty"`          // 前端价格标识
	OrderStatus int        `gorm:"index;not null;default:1" json:"order_status"`          // 订单状态 1待支付 2已支付
	Provider    string     `gorm:"type:varchar(32);index" json:"provider"`                // 支付提供方
	SessionID   string     `gorm:"type:varchar(255);index" json:"session_id,omitempty"`   // 第三方支付会话
	PaidAt      *time.Time `gorm:"index" json:"paid_at"`                                  // 支付时间
	ExpiredAt   time.Time  `gorm:"index" json:"expired_at"`                               // 过期时间
	CreatedAt   time.Time  `gorm:"index" json:"created_at"`                               // 创建时间
	UpdatedAt   time.Time  `json:"updated_at"`                                            // 更新时间
}

// TableName 指定表名
func (Order) TableName() string {
	return "credit_orders"
}

// IsPaid 是否已支付
func (o *Order) IsPaid() bool {
	return o != nil && o.OrderStatus == constants.OrderStatusPaid
}

// IsExpired 订单是否已过有效期
func (o *Order) IsExpired(now time.Time) bool {
	if o == nil || o.ExpiredAt.IsZero() {
		return false
	}
	return now.After(o.ExpiredAt)
}
