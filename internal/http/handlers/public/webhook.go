package public

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/aicover-pay/internal/constants"
	"github.com/aicover-pay/internal/http/response"
	"github.com/aicover-pay/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	callbackLogValueLimit = 4096
	callbackBodyLimit     = 1 << 20
	multipartMemoryLimit  = 1 << 20
)

// YunGouOSWebhook YunGouOS 微信扫码支付回调，纯文本应答 SUCCESS/FAIL
func (h *Handler) YunGouOSWebhook(c *gin.Context) {
	log := requestLog(c)
	fields, err := parseNotifyFields(c)
	if err != nil {
		log.Warnw("yungouos_webhook_parse_failed", "client_ip", c.ClientIP(), "error", err)
		response.PlainText(c, http.StatusBadRequest, constants.YunGouOSCallbackFail)
		return
	}
	log.Infow("yungouos_webhook_received",
		"client_ip", c.ClientIP(),
		"content_type", strings.TrimSpace(c.GetHeader("Content-Type")),
		"out_trade_no", fields["outTradeNo"],
		"code", fields["code"],
	)

	result, err := h.ReconcileService.HandleYunGouOSNotify(c.Request.Context(), fields)
	if err != nil {
		status := http.StatusInternalServerError
		if service.IsReconcileRejected(err) {
			status = http.StatusBadRequest
		}
		log.Warnw("yungouos_webhook_handle_failed", "out_trade_no", fields["outTradeNo"], "status", status, "error", err)
		response.PlainText(c, status, constants.YunGouOSCallbackFail)
		return
	}
	logReconcileResult(c, "yungouos_webhook_processed", result)
	response.PlainText(c, http.StatusOK, constants.YunGouOSCallbackSuccess)
}

// StripeWebhook Stripe webhook 回调
func (h *Handler) StripeWebhook(c *gin.Context) {
	log := requestLog(c)
	body, err := readCallbackBody(c)
	if err != nil {
		log.Warnw("stripe_webhook_body_read_failed", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"received": false})
		return
	}
	log.Infow("stripe_webhook_received",
		"client_ip", c.ClientIP(),
		"body_size", len(body),
		"stripe_signature", truncateCallbackLogValue(c.GetHeader("Stripe-Signature")),
	)

	result, err := h.ReconcileService.HandleStripeWebhook(c.Request.Context(), collectHeaders(c), body)
	if err != nil {
		status := http.StatusInternalServerError
		if service.IsReconcileRejected(err) {
			status = http.StatusBadRequest
		}
		log.Warnw("stripe_webhook_handle_failed", "status", status, "error", err)
		c.JSON(status, gin.H{"received": false})
		return
	}
	logReconcileResult(c, "stripe_webhook_processed", result)
	c.JSON(http.StatusOK, gin.H{"received": true})
}

// WechatPayWebhook 微信支付 v3 回调
func (h *Handler) WechatPayWebhook(c *gin.Context) {
	log := requestLog(c)
	body, err := readCallbackBody(c)
	if err != nil {
		log.Warnw("wechatpay_webhook_body_read_failed", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"code": constants.WechatPayCallbackFail, "message": "bad request"})
		return
	}
	log.Infow("wechatpay_webhook_received",
		"client_ip", c.ClientIP(),
		"body_size", len(body),
		"wechatpay_serial", strings.TrimSpace(c.GetHeader("Wechatpay-Serial")),
	)

	result, err := h.ReconcileService.HandleWechatPayNotify(c.Request.Context(), collectHeaders(c), body)
	if err != nil {
		status := http.StatusInternalServerError
		if service.IsReconcileRejected(err) {
			status = http.StatusBadRequest
		}
		log.Warnw("wechatpay_webhook_handle_failed", "status", status, "error", err)
		c.JSON(status, gin.H{"code": constants.WechatPayCallbackFail, "message": "FAIL"})
		return
	}
	logReconcileResult(c, "wechatpay_webhook_processed", result)
	c.JSON(http.StatusOK, gin.H{"code": constants.WechatPayCallbackSuccess})
}

// parseNotifyFields 解析回调参数，兼容表单、multipart 与 JSON
func parseNotifyFields(c *gin.Context) (map[string]string, error) {
	contentType := strings.TrimSpace(c.GetHeader("Content-Type"))
	mediaType := ""
	if contentType != "" {
		parsed, _, err := mime.ParseMediaType(contentType)
		if err != nil {
			return nil, fmt.Errorf("content type: %w", err)
		}
		mediaType = parsed
	}

	switch mediaType {
	case "application/json":
		body, err := readCallbackBody(c)
		if err != nil {
			return nil, err
		}
		return decodeJSONFields(body)
	case "multipart/form-data":
		if err := c.Request.ParseMultipartForm(multipartMemoryLimit); err != nil {
			return nil, err
		}
		return flattenForm(c.Request.MultipartForm.Value), nil
	default:
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, callbackBodyLimit)
		if err := c.Request.ParseForm(); err != nil {
			return nil, err
		}
		if len(c.Request.PostForm) > 0 {
			return flattenForm(c.Request.PostForm), nil
		}
		return flattenForm(c.Request.Form), nil
	}
}

func decodeJSONFields(body []byte) (map[string]string, error) {
	var raw map[string]interface{}
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	if err := decoder.Decode(&raw); err != nil {
		return nil, err
	}
	fields := make(map[string]string, len(raw))
	for key, value := range raw {
		switch v := value.(type) {
		case nil:
			fields[key] = ""
		case string:
			fields[key] = v
		case json.Number:
			fields[key] = v.String()
		case bool:
			fields[key] = fmt.Sprintf("%t", v)
		default:
			encoded, err := json.Marshal(v)
			if err != nil {
				return nil, err
			}
			fields[key] = string(encoded)
		}
	}
	return fields, nil
}

func flattenForm(form map[string][]string) map[string]string {
	fields := make(map[string]string, len(form))
	for key, values := range form {
		if len(values) == 0 {
			fields[key] = ""
			continue
		}
		fields[key] = values[0]
	}
	return fields
}

func readCallbackBody(c *gin.Context) ([]byte, error) {
	if c.Request.Body == nil {
		return nil, errors.New("empty body")
	}
	return io.ReadAll(io.LimitReader(c.Request.Body, callbackBodyLimit))
}

func collectHeaders(c *gin.Context) map[string]string {
	headers := make(map[string]string, len(c.Request.Header))
	for key, values := range c.Request.Header {
		if len(values) == 0 {
			continue
		}
		headers[key] = values[0]
	}
	return headers
}

func logReconcileResult(c *gin.Context, event string, result *service.ReconcileResult) {
	if result == nil {
		requestLog(c).Infow(event)
		return
	}
	requestLog(c).Infow(event,
		"order_no", result.OrderNo,
		"event_type", result.EventType,
		"settled", result.Settled,
		"duplicate", result.Duplicate,
		"ignored", result.Ignored,
	)
}

func truncateCallbackLogValue(raw string) string {
	raw = strings.TrimSpace(raw)
	if len(raw) <= callbackLogValueLimit {
		return raw
	}
	return raw[:callbackLogValueLimit] + "...(truncated)"
}
