package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"
)

func signedHeaders(secret string, ts int64, body []byte) map[string]string {
	return map[string]string{
		"stripe-signature": "t=" + strconv.FormatInt(ts, 10) + ",v1=" + ComputeSignature(secret, ts, body),
	}
}

func TestValidateConfigRequiresSecretKey(t *testing.T) {
	if err := ValidateConfig(&Config{}); !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("expected config invalid, got %v", err)
	}
	if err := ValidateConfig(&Config{SecretKey: "sk_test_1"}); err != nil {
		t.Fatalf("default api base url should be valid: %v", err)
	}
}

func TestCreateCheckoutSessionSubscriptionForm(t *testing.T) {
	var captured url.Values
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/checkout/sessions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		_ = r.ParseForm()
		captured = r.PostForm
		_, _ = w.Write([]byte(`{"id":"cs_test_42","url":"https://checkout.stripe.com/c/cs_test_42"}`))
	}))
	defer server.Close()

	cfg := &Config{SecretKey: "sk_test_1", APIBaseURL: server.URL}
	result, err := CreateCheckoutSession(context.Background(), cfg, CheckoutInput{
		OrderNo:       "AC20250101120000123456",
		CustomerEmail: "user@example.com",
		AmountMinor:   990,
		Currency:      "USD",
		ProductName:   "aicover credits plan",
		Recurring:     true,
		SuccessURL:    "https://aicover.design/pay-success/" + SessionIDPlaceholder,
		CancelURL:     "https://aicover.design/pricing",
		Metadata:      map[string]string{"project": "aicover", "credits": "100"},
	})
	if err != nil {
		t.Fatalf("create checkout session failed: %v", err)
	}
	if result.SessionID != "cs_test_42" || result.Mode != "subscription" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if auth != "Bearer sk_test_1" {
		t.Fatalf("unexpected authorization header: %s", auth)
	}
	checks := []struct{ key, want string }{
		{"mode", "subscription"},
		{"customer_email", "user@example.com"},
		{"payment_method_types[]", "card"},
		{"line_items[0][price_data][currency]", "usd"},
		{"line_items[0][price_data][unit_amount]", "990"},
		{"line_items[0][price_data][recurring][interval]", "month"},
		{"metadata[order_no]", "AC20250101120000123456"},
		{"metadata[project]", "aicover"},
		{"metadata[credits]", "100"},
		{"subscription_data[metadata][order_no]", "AC20250101120000123456"},
		{"success_url", "https://aicover.design/pay-success/" + SessionIDPlaceholder},
	}
	for _, check := range checks {
		if got := captured.Get(check.key); got != check.want {
			t.Fatalf("form %s want %q got %q", check.key, check.want, got)
		}
	}
}

func TestCreateCheckoutSessionOneTimeHasNoRecurring(t *testing.T) {
	var captured url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		captured = r.PostForm
		_, _ = w.Write([]byte(`{"id":"cs_test_43"}`))
	}))
	defer server.Close()

	_, err := CreateCheckoutSession(context.Background(), &Config{SecretKey: "sk", APIBaseURL: server.URL}, CheckoutInput{
		OrderNo:     "AC1",
		AmountMinor: 500,
		Currency:    "usd",
		SuccessURL:  "https://a.test/ok",
		CancelURL:   "https://a.test/cancel",
	})
	if err != nil {
		t.Fatalf("create checkout session failed: %v", err)
	}
	if captured.Get("mode") != "payment" {
		t.Fatalf("one-time plan should use payment mode, got %s", captured.Get("mode"))
	}
	if captured.Get("line_items[0][price_data][recurring][interval]") != "" {
		t.Fatalf("one-time plan should not carry recurring interval")
	}
	if _, ok := captured["subscription_data[metadata][order_no]"]; ok {
		t.Fatalf("one-time plan should not carry subscription metadata")
	}
}

func TestCreateCheckoutSessionRejectsErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad"}}`))
	}))
	defer server.Close()

	_, err := CreateCheckoutSession(context.Background(), &Config{SecretKey: "sk", APIBaseURL: server.URL}, CheckoutInput{
		OrderNo: "AC1", AmountMinor: 500, Currency: "usd",
		SuccessURL: "https://a.test/ok", CancelURL: "https://a.test/cancel",
	})
	if !errors.Is(err, ErrResponseInvalid) || !strings.Contains(err.Error(), "bad") {
		t.Fatalf("expected response invalid with stripe message, got %v", err)
	}
}

func TestCreateCheckoutSessionRejectsZeroAmount(t *testing.T) {
	_, err := CreateCheckoutSession(context.Background(), &Config{SecretKey: "sk"}, CheckoutInput{
		OrderNo: "AC1", Currency: "usd",
		SuccessURL: "https://a.test/ok", CancelURL: "https://a.test/cancel",
	})
	if !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("expected config invalid, got %v", err)
	}
}

func TestVerifyAndParseWebhookCheckoutCompleted(t *testing.T) {
	now := time.Unix(1760000000, 0)
	cfg := &Config{WebhookSecret: "whsec_test_abc", WebhookToleranceSeconds: 300}
	body, _ := json.Marshal(map[string]interface{}{
		"id":   "evt_test_1",
		"type": "checkout.session.completed",
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"object":         "checkout.session",
				"id":             "cs_test_123",
				"payment_status": "paid",
				"currency":       "USD",
				"amount_total":   990,
				"metadata": map[string]interface{}{
					"order_no": "AC20250101120000123456",
					"credits":  "100",
				},
			},
		},
	})

	result, err := VerifyAndParseWebhook(cfg, signedHeaders(cfg.WebhookSecret, now.Unix(), body), body, now)
	if err != nil {
		t.Fatalf("verify webhook failed: %v", err)
	}
	if result.Status != StatusSuccess {
		t.Fatalf("unexpected status: %s", result.Status)
	}
	if result.OrderNo != "AC20250101120000123456" || result.SessionID != "cs_test_123" {
		t.Fatalf("unexpected identifiers: %+v", result)
	}
	if result.AmountMinor != 990 || result.Currency != "usd" {
		t.Fatalf("unexpected amount: %d %s", result.AmountMinor, result.Currency)
	}
	if result.Metadata["credits"] != "100" {
		t.Fatalf("metadata should be kept: %v", result.Metadata)
	}
}

func TestVerifyAndParseWebhookUnpaidSessionIsPending(t *testing.T) {
	now := time.Unix(1760000000, 0)
	cfg := &Config{WebhookSecret: "whsec"}
	body, _ := json.Marshal(map[string]interface{}{
		"type": "checkout.session.completed",
		"data": map[string]interface{}{"object": map[string]interface{}{
			"object":         "checkout.session",
			"id":             "cs_1",
			"payment_status": "unpaid",
			"metadata":       map[string]interface{}{"order_no": "AC1"},
		}},
	})
	result, err := VerifyAndParseWebhook(cfg, signedHeaders("whsec", now.Unix(), body), body, now)
	if err != nil {
		t.Fatalf("verify webhook failed: %v", err)
	}
	if result.Status != StatusPending {
		t.Fatalf("unpaid session should stay pending, got %s", result.Status)
	}
}

func TestVerifyAndParseWebhookInvoicePaidUsesSubscriptionMetadata(t *testing.T) {
	now := time.Unix(1760000000, 0)
	cfg := &Config{WebhookSecret: "whsec"}
	body, _ := json.Marshal(map[string]interface{}{
		"type": "invoice.paid",
		"data": map[string]interface{}{"object": map[string]interface{}{
			"object":      "invoice",
			"amount_paid": 990,
			"currency":    "usd",
			"subscription_details": map[string]interface{}{
				"metadata": map[string]interface{}{"order_no": "AC2"},
			},
		}},
	})
	result, err := VerifyAndParseWebhook(cfg, signedHeaders("whsec", now.Unix(), body), body, now)
	if err != nil {
		t.Fatalf("verify webhook failed: %v", err)
	}
	if result.OrderNo != "AC2" || result.Status != StatusSuccess || result.AmountMinor != 990 {
		t.Fatalf("unexpected invoice result: %+v", result)
	}
}

func TestVerifyAndParseWebhookInvalidSignature(t *testing.T) {
	now := time.Unix(1760000000, 0)
	cfg := &Config{WebhookSecret: "whsec_test_abc"}
	body := []byte(`{"id":"evt_1","type":"checkout.session.completed","data":{"object":{"object":"checkout.session"}}}`)
	headers := map[string]string{"Stripe-Signature": "t=1760000000,v1=deadbeef"}
	if _, err := VerifyAndParseWebhook(cfg, headers, body, now); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected signature invalid, got %v", err)
	}
}

func TestVerifyAndParseWebhookOutsideTolerance(t *testing.T) {
	signedAt := time.Unix(1760000000, 0)
	cfg := &Config{WebhookSecret: "whsec", WebhookToleranceSeconds: 60}
	body := []byte(`{"type":"checkout.session.completed","data":{"object":{"object":"checkout.session"}}}`)
	_, err := VerifyAndParseWebhook(cfg, signedHeaders("whsec", signedAt.Unix(), body), body, signedAt.Add(2*time.Minute))
	if !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected tolerance failure, got %v", err)
	}
}

func TestMapCheckoutSessionStatus(t *testing.T) {
	cases := []struct {
		event, payment, session, want string
	}{
		{"checkout.session.completed", "paid", "complete", StatusSuccess},
		{"checkout.session.async_payment_succeeded", "paid", "complete", StatusSuccess},
		{"checkout.session.async_payment_failed", "unpaid", "complete", StatusFailed},
		{"checkout.session.expired", "unpaid", "expired", StatusExpired},
		{"checkout.session.completed", "unpaid", "complete", StatusPending},
	}
	for _, tc := range cases {
		if got := mapCheckoutSessionStatus(tc.event, tc.payment, tc.session); got != tc.want {
			t.Fatalf("%s/%s want %s got %s", tc.event, tc.payment, tc.want, got)
		}
	}
}

func TestParseSignatureHeader(t *testing.T) {
	sh, err := parseSignatureHeader("t=1760000000, v1=ABC, v0=zzz, v1=def")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if sh.timestamp != 1760000000 || len(sh.v1) != 2 || sh.v1[0] != "abc" {
		t.Fatalf("unexpected header: %+v", sh)
	}
	for _, raw := range []string{"v1=abc", "t=1760000000", "t=x,v1=abc"} {
		if _, err := parseSignatureHeader(raw); !errors.Is(err, ErrSignatureInvalid) {
			t.Fatalf("%q should be rejected, got %v", raw, err)
		}
	}
}

func TestVerifyAndParseWebhookRequiresSecret(t *testing.T) {
	if _, err := VerifyAndParseWebhook(&Config{}, nil, []byte("{}"), time.Now()); !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("expected config invalid, got %v", err)
	}
}
