package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/taoyao-code/sigen-gateway/internal/api/middleware"
	"github.com/taoyao-code/sigen-gateway/internal/gateway"
	"github.com/taoyao-code/sigen-gateway/internal/gateway/gatewaytest"
)

// newTestRouter 构建指向桩网关的完整路由
func newTestRouter(t *testing.T, stub *gatewaytest.Stub) (*gin.Engine, *gateway.Client) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	host, port := stub.HostPort()
	client := gateway.New(gateway.Config{
		Credentials: gateway.Credentials{
			Host: host, WSPort: port, Username: "admin", Password: "secret",
		},
		ConnectTimeout:  2 * time.Second,
		ResponseTimeout: 500 * time.Millisecond,
	}, zap.NewNop(), nil)
	t.Cleanup(func() { _ = client.Close() })

	r := gin.New()
	RegisterRoutes(r, client, nil, middleware.AuthConfig{}, zap.NewNop())
	return r, client
}

func doJSON(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestSetThenGetModbusServer(t *testing.T) {
	stub, _ := gatewaytest.NewEcho()
	defer stub.Close()
	r, _ := newTestRouter(t, stub)

	rr := doJSON(r, http.MethodPut, "/api/v1/modbus-server", `{"enabled":true,"port":502}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp StandardResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Code)
	assert.NotEmpty(t, resp.RequestID)

	rr = doJSON(r, http.MethodGet, "/api/v1/modbus-server", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	data := resp.Data.(map[string]any)
	assert.Equal(t, true, data["enabled"])
	assert.Equal(t, float64(502), data["port"])
}

func TestSetModbusServerBadRequest(t *testing.T) {
	stub, _ := gatewaytest.NewEcho()
	defer stub.Close()
	r, _ := newTestRouter(t, stub)

	// 缺字段
	rr := doJSON(r, http.MethodPut, "/api/v1/modbus-server", `{"enabled":true}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	// 端口越界：本地校验，不触发网关交互
	rr = doJSON(r, http.MethodPut, "/api/v1/modbus-server", `{"enabled":true,"port":70000}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, 0, stub.FrameCount())
}

func TestGatewayRejectionMapsToBadGateway(t *testing.T) {
	stub, g := gatewaytest.NewEcho()
	defer stub.Close()
	// 连续两次拒绝（重登录后仍拒绝）→ 明确拒绝
	g.CommandCodes = []int{7, 7}
	r, _ := newTestRouter(t, stub)

	rr := doJSON(r, http.MethodPut, "/api/v1/modbus-server", `{"enabled":true,"port":502}`)
	require.Equal(t, http.StatusBadGateway, rr.Code)

	var resp StandardResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 7, resp.Code, "网关业务码应原样透传")
	assert.Equal(t, "denied", resp.Message)
}

func TestTestConnectionEndpoint(t *testing.T) {
	stub, _ := gatewaytest.NewEcho()
	defer stub.Close()
	r, _ := newTestRouter(t, stub)

	rr := doJSON(r, http.MethodPost, "/api/v1/test-connection", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp StandardResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	data := resp.Data.(map[string]any)
	assert.Equal(t, "SN123", data["serial"])
	assert.Equal(t, "authenticated", data["session_state"])
}

func TestTestConnectionAuthFailure(t *testing.T) {
	stub, g := gatewaytest.NewEcho()
	defer stub.Close()
	g.LoginCodes = []int{1}
	r, _ := newTestRouter(t, stub)

	rr := doJSON(r, http.MethodPost, "/api/v1/test-connection", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestGetStatusCachedWithoutPoller(t *testing.T) {
	stub, _ := gatewaytest.NewEcho()
	defer stub.Close()
	r, _ := newTestRouter(t, stub)

	// 未启用轮询时 cached=1 回退实时查询
	rr := doJSON(r, http.MethodGet, "/api/v1/modbus-server?cached=1", "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestGatewayInfoEndpoint(t *testing.T) {
	stub, _ := gatewaytest.NewEcho()
	defer stub.Close()
	r, _ := newTestRouter(t, stub)

	// 未登录时也可查询诊断信息
	rr := doJSON(r, http.MethodGet, "/api/v1/gateway", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var resp StandardResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	data := resp.Data.(map[string]any)
	assert.Equal(t, "unauthenticated", data["session_state"])
}
