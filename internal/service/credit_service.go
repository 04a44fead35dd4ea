package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aicover-pay/internal/cache"
	"github.com/aicover-pay/internal/logger"
	"github.com/aicover-pay/internal/models"
	"github.com/aicover-pay/internal/repository"

	"gorm.io/gorm"
)

const defaultOrderListLimit = 20

// CreditService 积分汇总与消耗
type CreditService struct {
	creditRepo repository.CreditRepository
	orderRepo  repository.OrderRepository
}

// NewCreditService 创建积分服务
func NewCreditService(creditRepo repository.CreditRepository, orderRepo repository.OrderRepository) *CreditService {
	return &CreditService{creditRepo: creditRepo, orderRepo: orderRepo}
}

// GetSummary 查询用户积分汇总，优先读缓存
func (s *CreditService) GetSummary(ctx context.Context, email string) (*cache.CreditSummary, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, ErrUnauthorized
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if summary, hit, err := cache.GetCreditSummary(ctx, email); err != nil {
		logger.Warnw("credit_summary_cache_get_failed", "user_email", email, "error", err)
	} else if hit {
		return summary, nil
	}
	return s.RefreshSummary(ctx, email)
}

// RefreshSummary 从账本重新计算并回写缓存
func (s *CreditService) RefreshSummary(ctx context.Context, email string) (*cache.CreditSummary, error) {
	summary, err := computeSummary(s.creditRepo, email)
	if err != nil {
		return nil, err
	}
	if err := cache.SetCreditSummary(ctx, email, *summary); err != nil {
		logger.Warnw("credit_summary_cache_set_failed", "user_email", email, "error", err)
	}
	return summary, nil
}

// Consume 扣减积分，余额不足返回 ErrCreditsShort
func (s *CreditService) Consume(ctx context.Context, email string, credits int, reason string) (*cache.CreditSummary, error) {
	email = strings.TrimSpace(email)
	if email == "" || credits <= 0 {
		return nil, ErrInvalidParams
	}
	var summary *cache.CreditSummary
	err := models.DB.Transaction(func(tx *gorm.DB) error {
		repo := s.creditRepo.WithTx(tx)
		current, err := computeSummary(repo, email)
		if err != nil {
			return err
		}
		if current.LeftCredits < int64(credits) {
			return fmt.Errorf("%w: left %d", ErrCreditsShort, current.LeftCredits)
		}
		if err := repo.CreateUsage(&models.CreditUsage{
			UserEmail: email,
			Credits:   credits,
			Reason:    strings.TrimSpace(reason),
			CreatedAt: time.Now(),
		}); err != nil {
			return err
		}
		current.UsedCredits += int64(credits)
		current.LeftCredits -= int64(credits)
		summary = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	_ = cache.InvalidateCreditSummary(ctx, email)
	return summary, nil
}

// ListOrders 查询用户最近订单
func (s *CreditService) ListOrders(email string, limit int) ([]models.Order, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, ErrUnauthorized
	}
	if limit <= 0 || limit > 100 {
		limit = defaultOrderListLimit
	}
	return s.orderRepo.ListByUserEmail(email, limit)
}

// GetOrder 查询用户自己的订单，他人订单视为不存在
func (s *CreditService) GetOrder(email, orderNo string) (*models.Order, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, ErrUnauthorized
	}
	orderNo = strings.TrimSpace(orderNo)
	if orderNo == "" {
		return nil, ErrOrderNoRequired
	}
	order, err := s.orderRepo.GetByOrderNoAndEmail(orderNo, email)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

type creditSummer interface {
	SumGrantedByEmail(email string) (int64, error)
	SumUsedByEmail(email string) (int64, error)
}

func computeSummary(repo creditSummer, email string) (*cache.CreditSummary, error) {
	total, err := repo.SumGrantedByEmail(email)
	if err != nil {
		return nil, err
	}
	used, err := repo.SumUsedByEmail(email)
	if err != nil {
		return nil, err
	}
	return &cache.CreditSummary{
		TotalCredits: total,
		UsedCredits:  used,
		LeftCredits:  total - used,
	}, nil
}
