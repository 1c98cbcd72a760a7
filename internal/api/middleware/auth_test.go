package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newAuthRouter(cfg AuthConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(APIKeyAuth(cfg, zap.NewNop()))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return r
}

func doGet(r *gin.Engine, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestAPIKeyAuthDisabledPassesThrough(t *testing.T) {
	r := newAuthRouter(AuthConfig{Enabled: false})
	assert.Equal(t, http.StatusOK, doGet(r, nil).Code)
}

func TestAPIKeyAuthHeader(t *testing.T) {
	cfg := AuthConfig{Enabled: true, APIKeys: []string{"sk_test_abc"}}
	r := newAuthRouter(cfg)

	assert.Equal(t, http.StatusUnauthorized, doGet(r, nil).Code, "缺少Key应拒绝")
	assert.Equal(t, http.StatusForbidden,
		doGet(r, map[string]string{"X-API-Key": "wrong"}).Code, "错误Key应拒绝")
	assert.Equal(t, http.StatusOK,
		doGet(r, map[string]string{"X-API-Key": "sk_test_abc"}).Code)
	assert.Equal(t, http.StatusOK,
		doGet(r, map[string]string{"Authorization": "Bearer sk_test_abc"}).Code, "Bearer 格式兼容")
}

func TestMaskAPIKey(t *testing.T) {
	assert.Equal(t, "****", maskAPIKey("abc"))
	assert.Equal(t, "sk_t****", maskAPIKey("sk_test_abc"))
}
