package models

import "time"

// CreditGrant 积分发放流水，每个订单最多一条
type CreditGrant struct {
	ID        uint      `gorm:"primarykey" json:"id"`                                  // 主键
	OrderNo   string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"order_no"` // 关联订单编号
	UserEmail string    `gorm:"type:varchar(255);index;not null" json:"user_email"`    // 用户邮箱
	Credits   int       `gorm:"not null" json:"credits"`                               // 发放积分
	Provider  string    `gorm:"type:varchar(32)" json:"provider"`                      // 支付提供方
	CreatedAt time.Time `gorm:"index" json:"created_at"`                               // 发放时间
}

// TableName 指定表名
func (CreditGrant) TableName() string {
	return "credit_grants"
}

// CreditUsage 积分消耗记录
type CreditUsage struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	UserEmail string    `gorm:"type:varchar(255);index;not null" json:"user_email"`
	Credits   int       `gorm:"not null" json:"credits"`
	Reason    string    `gorm:"type:varchar(64)" json:"reason"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// TableName 指定表名
func (CreditUsage) TableName() string {
	return "credit_usages"
}
