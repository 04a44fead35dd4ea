package service

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidParams = errors.New("invalid params")
	ErrInvalidPlan   = fmt.Errorf("%w: invalid plan", ErrInvalidParams)

	ErrPaymentProviderUnavailable = errors.New("payment provider unavailable")
	ErrPaymentProviderError       = errors.New("payment provider error")

	// 回调对账失败，统一应答 FAIL
	ErrSignatureMismatch = errors.New("signature mismatch")
	ErrMerchantMismatch  = errors.New("merchant mismatch")
	ErrAmountMismatch    = errors.New("amount mismatch")
	ErrOrderStateInvalid = errors.New("order state invalid")

	ErrOrderNoRequired = errors.New("order no required")
	ErrOrderNotFound   = errors.New("order not found")
	ErrPollTimeout     = errors.New("poll timeout")

	ErrUnauthorized = errors.New("unauthorized")
	ErrCreditsShort = errors.New("credits insufficient")
)

// IsReconcileRejected 回调被业务规则拒绝，而非系统异常
func IsReconcileRejected(err error) bool {
	for _, target := range []error{
		ErrSignatureMismatch,
		ErrMerchantMismatch,
		ErrAmountMismatch,
		ErrOrderNotFound,
		ErrInvalidParams,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
