package models

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrAmountInvalid 金额格式非法
var ErrAmountInvalid = errors.New("amount invalid")

var hundred = decimal.NewFromInt(100)

// MinorToMajor 将最小货币单位（分）转换为两位小数的元字符串
func MinorToMajor(amount int64) string {
	return decimal.NewFromInt(amount).Div(hundred).StringFixed(2)
}

// MajorToMinor 将元字符串转换为分，精度超过分时报错
func MajorToMinor(raw string) (int64, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return 0, ErrAmountInvalid
	}
	minor := value.Mul(hundred)
	if !minor.Equal(minor.Truncate(0)) {
		return 0, ErrAmountInvalid
	}
	return minor.IntPart(), nil
}
