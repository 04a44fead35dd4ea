package public

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/aicover-pay/internal/config"
	"github.com/aicover-pay/internal/constants"
	handlershared "github.com/aicover-pay/internal/http/handlers/shared"
	"github.com/aicover-pay/internal/models"
	"github.com/aicover-pay/internal/payment/yungouos"
	"github.com/aicover-pay/internal/provider"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

const (
	testMchID = "1529000000"
	testKey   = "secret-key"
)

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// fakeYunGouOS 模拟扫码下单接口，body 为空时返回成功二维码
func fakeYunGouOS(t *testing.T, body string) *httptest.Server {
	t.Helper()
	if body == "" {
		body = `{"code":0,"msg":"ok","data":"https://qr.yungouos.test/abc.png"}`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func setupHandlerTest(t *testing.T, yungouosURL string) (*gin.Engine, *provider.Container) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dsn := fmt.Sprintf("file:public_handler_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db failed: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := models.Migrate(db); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	models.DB = db

	cfg := config.Default()
	cfg.YunGouOS.MchID = testMchID
	cfg.YunGouOS.Key = testKey
	cfg.YunGouOS.BaseURL = yungouosURL
	cfg.Payment.PollIntervalSeconds = 1
	cfg.Payment.PollTimeoutSeconds = 1
	container := provider.NewContainer(cfg)
	h := New(container)

	r := gin.New()
	withUser := func(c *gin.Context) {
		if email := c.GetHeader("X-Test-Email"); email != "" {
			c.Set(handlershared.UserEmailKey, email)
		}
		c.Next()
	}
	r.POST("/api/checkout", withUser, h.Checkout)
	r.GET("/api/orders/wechat/status", h.GetWechatOrderStatus)
	r.GET("/api/orders/wechat/status/wait", h.WaitWechatOrderStatus)
	r.POST("/api/webhook/wechat", h.YunGouOSWebhook)
	r.POST("/api/webhook/stripe", h.StripeWebhook)
	r.GET("/api/user/credits", withUser, h.GetMyCredits)
	r.POST("/api/user/credits/consume", withUser, h.ConsumeMyCredits)
	r.GET("/api/user/orders/:order_no", withUser, h.GetMyOrder)
	return r, container
}

func doJSON(r *gin.Engine, method, path, body, email string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if email != "" {
		req.Header.Set("X-Test-Email", email)
	}
	r.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	if w.Code != http.StatusOK {
		t.Fatalf("status want 200 got %d body %s", w.Code, w.Body.String())
	}
	var resp envelope
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response failed: %v", err)
	}
	return resp
}

func checkoutOrder(t *testing.T, r *gin.Engine) string {
	t.Helper()
	w := doJSON(r, http.MethodPost, "/api/checkout",
		`{"priceId":"price_basic","plan":"one-time","credits":100,"amount":2025,"currency":"cny"}`, "buyer@example.com")
	resp := decodeEnvelope(t, w)
	if resp.Code != 0 {
		t.Fatalf("checkout failed: %+v", resp)
	}
	var data struct {
		PaymentType string `json:"payment_type"`
		OrderNo     string `json:"order_no"`
		QRCode      string `json:"qr_code"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		t.Fatalf("unmarshal data failed: %v", err)
	}
	if data.PaymentType != constants.PaymentTypeWechat || data.QRCode != "https://qr.yungouos.test/abc.png" || data.OrderNo == "" {
		t.Fatalf("unexpected checkout data: %+v", data)
	}
	return data.OrderNo
}

func signedNotifyForm(orderNo, money string) url.Values {
	fields := map[string]string{
		"code":       "1",
		"mchId":      testMchID,
		"money":      money,
		"orderNo":    "Y" + orderNo,
		"outTradeNo": orderNo,
		"payNo":      "4200001",
	}
	fields["sign"] = yungouos.Sign(fields, yungouos.VariantFixed, yungouos.NotifySignFields, testKey)
	form := url.Values{}
	for k, v := range fields {
		form.Set(k, v)
	}
	return form
}

func postNotify(r *gin.Engine, form url.Values) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/webhook/wechat", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.ServeHTTP(w, req)
	return w
}

func TestCheckoutRequiresAuth(t *testing.T) {
	r, _ := setupHandlerTest(t, fakeYunGouOS(t, "").URL)
	w := doJSON(r, http.MethodPost, "/api/checkout", `{"plan":"one-time","credits":1,"amount":1,"currency":"cny"}`, "")
	if w.Code != http.StatusUnauthorized || w.Body.String() != `{"code":-2,"message":"no auth"}` {
		t.Fatalf("unexpected no auth response: %d %s", w.Code, w.Body.String())
	}
	var count int64
	models.DB.Model(&models.Order{}).Count(&count)
	if count != 0 {
		t.Fatalf("unauthenticated checkout must not create orders")
	}
}

func TestCheckoutErrorMessages(t *testing.T) {
	r, _ := setupHandlerTest(t, fakeYunGouOS(t, `{"code":1,"msg":"merchant disabled"}`).URL)
	cases := []struct {
		name string
		body string
		code int
		msg  string
	}{
		{"bad json", `{"plan":`, 400, "invalid params"},
		{"invalid plan", `{"plan":"weekly","credits":1,"amount":100,"currency":"cny"}`, 400, "invalid plan"},
		{"invalid amount", `{"plan":"one-time","credits":1,"amount":0,"currency":"cny"}`, 400, "invalid params"},
		{"wechat failure", `{"plan":"one-time","credits":1,"amount":100,"currency":"cny"}`, 500, "WeChat Pay initialization failed"},
		{"no stripe configured", `{"plan":"one-time","credits":1,"amount":100,"currency":"usd"}`, 500, "checkout failed"},
	}
	for _, tc := range cases {
		resp := decodeEnvelope(t, doJSON(r, http.MethodPost, "/api/checkout", tc.body, "buyer@example.com"))
		if resp.Code != tc.code || resp.Msg != tc.msg {
			t.Fatalf("%s: want %d %q got %d %q", tc.name, tc.code, tc.msg, resp.Code, resp.Msg)
		}
	}
}

func TestCheckoutNotifyAndStatusFlow(t *testing.T) {
	r, _ := setupHandlerTest(t, fakeYunGouOS(t, "").URL)
	orderNo := checkoutOrder(t, r)

	status := decodeEnvelope(t, doJSON(r, http.MethodGet, "/api/orders/wechat/status?order_no="+orderNo, "", ""))
	if status.Code != 0 || !strings.Contains(string(status.Data), `"paid":false`) {
		t.Fatalf("new order should be pending: %s", status.Data)
	}

	tampered := signedNotifyForm(orderNo, "20.25")
	tampered.Set("money", "0.01")
	if w := postNotify(r, tampered); w.Code != http.StatusBadRequest || w.Body.String() != "FAIL" {
		t.Fatalf("tampered notify want 400 FAIL got %d %s", w.Code, w.Body.String())
	}

	for i := 0; i < 2; i++ {
		w := postNotify(r, signedNotifyForm(orderNo, "20.25"))
		if w.Code != http.StatusOK || w.Body.String() != "SUCCESS" {
			t.Fatalf("notify %d want 200 SUCCESS got %d %s", i, w.Code, w.Body.String())
		}
		if !strings.HasPrefix(w.Header().Get("Content-Type"), "text/plain") {
			t.Fatalf("notify ack should be plain text, got %s", w.Header().Get("Content-Type"))
		}
	}

	status = decodeEnvelope(t, doJSON(r, http.MethodGet, "/api/orders/wechat/status?order_no="+orderNo, "", ""))
	if !strings.Contains(string(status.Data), `"paid":true`) || !strings.Contains(string(status.Data), `"status":2`) {
		t.Fatalf("order should be paid: %s", status.Data)
	}

	credits := decodeEnvelope(t, doJSON(r, http.MethodGet, "/api/user/credits", "", "buyer@example.com"))
	if !strings.Contains(string(credits.Data), `"total_credits":100`) {
		t.Fatalf("credits should be granted once: %s", credits.Data)
	}

	consumed := decodeEnvelope(t, doJSON(r, http.MethodPost, "/api/user/credits/consume", `{"credits":30,"reason":"cover"}`, "buyer@example.com"))
	if consumed.Code != 0 || !strings.Contains(string(consumed.Data), `"left_credits":70`) {
		t.Fatalf("unexpected consume response: %+v", consumed)
	}
	short := decodeEnvelope(t, doJSON(r, http.MethodPost, "/api/user/credits/consume", `{"credits":71}`, "buyer@example.com"))
	if short.Code != 400 || short.Msg != "insufficient credits" {
		t.Fatalf("unexpected short response: %+v", short)
	}

	detail := decodeEnvelope(t, doJSON(r, http.MethodGet, "/api/user/orders/"+orderNo, "", "buyer@example.com"))
	if detail.Code != 0 || !strings.Contains(string(detail.Data), orderNo) {
		t.Fatalf("owner should see order detail: %+v", detail)
	}
	hidden := decodeEnvelope(t, doJSON(r, http.MethodGet, "/api/user/orders/"+orderNo, "", "someone@example.com"))
	if hidden.Code != 404 {
		t.Fatalf("other user should not see the order: %+v", hidden)
	}
}

func TestYunGouOSWebhookAcceptsJSONBody(t *testing.T) {
	r, _ := setupHandlerTest(t, fakeYunGouOS(t, "").URL)
	orderNo := checkoutOrder(t, r)

	form := signedNotifyForm(orderNo, "20.25")
	payload := map[string]string{}
	for k := range form {
		payload[k] = form.Get(k)
	}
	body, _ := json.Marshal(payload)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/webhook/wechat", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Body.String() != "SUCCESS" {
		t.Fatalf("json notify want SUCCESS got %d %s", w.Code, w.Body.String())
	}
}

func TestYunGouOSWebhookUnknownOrderFails(t *testing.T) {
	r, _ := setupHandlerTest(t, fakeYunGouOS(t, "").URL)
	if w := postNotify(r, signedNotifyForm("AC_UNKNOWN", "1.00")); w.Code != http.StatusBadRequest || w.Body.String() != "FAIL" {
		t.Fatalf("unknown order want 400 FAIL got %d %s", w.Code, w.Body.String())
	}
}

func TestOrderStatusErrors(t *testing.T) {
	r, _ := setupHandlerTest(t, fakeYunGouOS(t, "").URL)
	resp := decodeEnvelope(t, doJSON(r, http.MethodGet, "/api/orders/wechat/status", "", ""))
	if resp.Code != 400 || resp.Msg != "订单号不能为空" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	resp = decodeEnvelope(t, doJSON(r, http.MethodGet, "/api/orders/wechat/status?order_no=AC_MISSING", "", ""))
	if resp.Code != 404 || resp.Msg != "订单不存在" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	resp = decodeEnvelope(t, doJSON(r, http.MethodGet, "/api/orders/wechat/status/wait?order_no=x&timeout_seconds=abc", "", ""))
	if resp.Code != 400 {
		t.Fatalf("bad timeout should be rejected: %+v", resp)
	}
}

func TestWaitOrderStatusTimesOutWithLastStatus(t *testing.T) {
	r, _ := setupHandlerTest(t, fakeYunGouOS(t, "").URL)
	orderNo := checkoutOrder(t, r)
	start := time.Now()
	resp := decodeEnvelope(t, doJSON(r, http.MethodGet, "/api/orders/wechat/status/wait?order_no="+orderNo+"&timeout_seconds=60", "", ""))
	if resp.Code != 0 || !strings.Contains(string(resp.Data), `"paid":false`) {
		t.Fatalf("timeout should return pending status: %+v", resp)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("wait timeout should be capped by config, took %v", time.Since(start))
	}
}

func TestStripeWebhookUnconfigured(t *testing.T) {
	r, _ := setupHandlerTest(t, fakeYunGouOS(t, "").URL)
	w := doJSON(r, http.MethodPost, "/api/webhook/stripe", `{"type":"checkout.session.completed"}`, "")
	if w.Code != http.StatusInternalServerError || !strings.Contains(w.Body.String(), `"received":false`) {
		t.Fatalf("unconfigured stripe webhook should fail: %d %s", w.Code, w.Body.String())
	}
}

func TestParseNotifyFieldsMultipart(t *testing.T) {
	gin.SetMode(gin.TestMode)
	body := "--b\r\nContent-Disposition: form-data; name=\"outTradeNo\"\r\n\r\nAC1\r\n--b\r\nContent-Disposition: form-data; name=\"code\"\r\n\r\n1\r\n--b--\r\n"
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/webhook/wechat", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "multipart/form-data; boundary=b")

	fields, err := parseNotifyFields(c)
	if err != nil {
		t.Fatalf("parse multipart failed: %v", err)
	}
	if fields["outTradeNo"] != "AC1" || fields["code"] != "1" {
		t.Fatalf("unexpected fields: %v", fields)
	}
}

func TestDecodeJSONFieldsKeepsNumberText(t *testing.T) {
	fields, err := decodeJSONFields([]byte(`{"money":20.25,"code":1,"attach":null,"ok":true}`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if fields["money"] != "20.25" || fields["code"] != "1" || fields["attach"] != "" || fields["ok"] != "true" {
		t.Fatalf("unexpected fields: %v", fields)
	}
}
