package yungouos

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"sort"
	"strings"
)

// 签名字段拼接方式
const (
	VariantSorted = "sorted" // 按 key 字典序
	VariantFixed  = "fixed"  // 按给定字段顺序
)

// 下单签名只覆盖这四个字段
var RequestSignFields = []string{"out_trade_no", "total_fee", "mch_id", "body"}

// 异步通知签名字段，顺序即拼接顺序
var NotifySignFields = []string{"code", "mchId", "money", "orderNo", "outTradeNo", "payNo"}

// BuildSignContent 生成待签名串（不含 key）
// fields 为空时取全部参数（sign 除外）；fixed 方式在 fields 为空时退化为 sorted。
func BuildSignContent(params map[string]string, variant string, fields []string) string {
	keys := selectKeys(params, fields)
	if variant != VariantFixed || len(fields) == 0 {
		sort.Strings(keys)
	}
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params[k])
	}
	return strings.Join(pairs, "&")
}

// Sign 计算 MD5 签名，输出大写十六进制
func Sign(params map[string]string, variant string, fields []string, key string) string {
	content := BuildSignContent(params, variant, fields) + "&key=" + key
	sum := md5.Sum([]byte(content))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// Verify 校验 params 中的 sign 字段，任何异常输入都只返回 false
func Verify(params map[string]string, variant string, fields []string, key string) bool {
	if params == nil || strings.TrimSpace(key) == "" {
		return false
	}
	received := strings.TrimSpace(params["sign"])
	if received == "" {
		return false
	}
	expected := Sign(params, variant, fields, key)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(received)) == 1
}

func selectKeys(params map[string]string, fields []string) []string {
	keys := make([]string, 0, len(params))
	if len(fields) == 0 {
		for k, v := range params {
			if k == "sign" || v == "" {
				continue
			}
			keys = append(keys, k)
		}
		return keys
	}
	for _, k := range fields {
		if k == "sign" || params[k] == "" {
			continue
		}
		keys = append(keys, k)
	}
	return keys
}
