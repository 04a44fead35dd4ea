package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestErrorEnvelopeCarriesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Set("request_id", "req-1")

	Error(c, CodeBadRequest, "invalid params")

	if w.Code != http.StatusOK {
		t.Fatalf("status want 200 got %d", w.Code)
	}
	var resp struct {
		Code int               `json:"code"`
		Msg  string            `json:"msg"`
		Data map[string]string `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response failed: %v", err)
	}
	if resp.Code != CodeBadRequest || resp.Msg != "invalid params" || resp.Data["request_id"] != "req-1" {
		t.Fatalf("unexpected envelope: %+v", resp)
	}
}

func TestNoAuthUsesFixedBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	NoAuth(c)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status want 401 got %d", w.Code)
	}
	if w.Body.String() != `{"code":-2,"message":"no auth"}` {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
	if !c.IsAborted() {
		t.Fatalf("context should be aborted")
	}
}

func TestWrapErrorUnwraps(t *testing.T) {
	base := errors.New("boom")
	err := WrapError(CodeInternal, "checkout failed", base)
	if !errors.Is(err, base) || err.Error() != "checkout failed: boom" {
		t.Fatalf("unexpected wrap: %v", err)
	}
	if WrapError(CodeInternal, "checkout failed", nil).Error() != "checkout failed" {
		t.Fatalf("nil cause should keep message only")
	}
}
