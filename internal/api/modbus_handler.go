package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/sigen-gateway/internal/api/middleware"
	"github.com/taoyao-code/sigen-gateway/internal/gateway"
	"github.com/taoyao-code/sigen-gateway/internal/poller"
)

// StandardResponse 标准响应格式
type StandardResponse struct {
	Code      int         `json:"code"`           // 0=成功, >0=错误码
	Message   string      `json:"message"`        // 消息
	Data      interface{} `json:"data,omitempty"` // 业务数据
	RequestID string      `json:"request_id"`     // 请求追踪ID
	Timestamp int64       `json:"timestamp"`      // 时间戳
}

// ModbusHandler Modbus TCP 设置API处理器
type ModbusHandler struct {
	client *gateway.Client
	poller *poller.Poller
	logger *zap.Logger
}

// NewModbusHandler 创建处理器
func NewModbusHandler(client *gateway.Client, p *poller.Poller, logger *zap.Logger) *ModbusHandler {
	return &ModbusHandler{client: client, poller: p, logger: logger}
}

// SetModbusRequest 写入请求体
type SetModbusRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
	Port    *int  `json:"port" binding:"required"`
}

// GetStatus 查询 Modbus TCP 服务配置
// cached=1 时返回轮询缓存（不触发网关交互）
func (h *ModbusHandler) GetStatus(c *gin.Context) {
	if c.Query("cached") == "1" && h.poller != nil {
		snap, ok := h.poller.Last()
		if !ok {
			h.writeError(c, http.StatusServiceUnavailable, 1001, "no cached status yet")
			return
		}
		h.writeOK(c, gin.H{
			"enabled":    snap.Config.Enabled,
			"port":       snap.Config.Port,
			"updated_at": snap.UpdatedAt.Unix(),
		})
		return
	}

	cfg, err := h.client.GetModbusServerStatus(c.Request.Context())
	if err != nil {
		h.writeGatewayError(c, err)
		return
	}
	h.writeOK(c, cfg)
}

// SetStatus 写入 Modbus TCP 服务配置
func (h *ModbusHandler) SetStatus(c *gin.Context) {
	var req SetModbusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, http.StatusBadRequest, 1002, "invalid request body: "+err.Error())
		return
	}
	if err := h.client.SetModbusServer(c.Request.Context(), *req.Enabled, *req.Port); err != nil {
		h.writeGatewayError(c, err)
		return
	}
	h.writeOK(c, gateway.ModbusServerConfig{Enabled: *req.Enabled, Port: *req.Port})
}

// TestConnection 仅执行登录握手，供配置校验使用
func (h *ModbusHandler) TestConnection(c *gin.Context) {
	if err := h.client.TestConnection(c.Request.Context()); err != nil {
		h.writeGatewayError(c, err)
		return
	}
	h.writeOK(c, h.client.Info())
}

// GetInfo 网关诊断信息（序列号、会话状态）
func (h *ModbusHandler) GetInfo(c *gin.Context) {
	h.writeOK(c, h.client.Info())
}

func (h *ModbusHandler) writeOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, StandardResponse{
		Code:      0,
		Message:   "ok",
		Data:      data,
		RequestID: c.GetString(middleware.RequestIDKey),
		Timestamp: time.Now().Unix(),
	})
}

func (h *ModbusHandler) writeError(c *gin.Context, status, code int, msg string) {
	c.JSON(status, StandardResponse{
		Code:      code,
		Message:   msg,
		RequestID: c.GetString(middleware.RequestIDKey),
		Timestamp: time.Now().Unix(),
	})
}

// writeGatewayError 将网关错误分类映射为HTTP状态码，
// 网关原始 code/msg 原样透出便于排障
func (h *ModbusHandler) writeGatewayError(c *gin.Context, err error) {
	requestID := c.GetString(middleware.RequestIDKey)
	h.logger.Warn("gateway operation failed",
		zap.Error(err), zap.String("request_id", requestID))

	var (
		vErr *gateway.ValidationError
		aErr *gateway.AuthenticationError
		rErr *gateway.GatewayRejectedError
		tErr *gateway.TimeoutError
		pErr *gateway.ProtocolError
	)
	switch {
	case errors.As(err, &vErr):
		h.writeError(c, http.StatusBadRequest, 1002, vErr.Error())
	case errors.As(err, &aErr):
		h.writeError(c, http.StatusUnauthorized, 1003, aErr.Error())
	case errors.As(err, &rErr):
		// 网关业务码透传
		h.writeError(c, http.StatusBadGateway, rErr.Code, rErr.Msg)
	case errors.As(err, &tErr):
		h.writeError(c, http.StatusGatewayTimeout, 1004, tErr.Error())
	case errors.As(err, &pErr):
		h.writeError(c, http.StatusBadGateway, 1005, pErr.Error())
	default:
		h.writeError(c, http.StatusServiceUnavailable, 1006, err.Error())
	}
}
