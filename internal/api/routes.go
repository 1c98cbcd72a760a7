package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/sigen-gateway/internal/api/middleware"
	"github.com/taoyao-code/sigen-gateway/internal/gateway"
	"github.com/taoyao-code/sigen-gateway/internal/poller"
)

// RegisterRoutes 注册 Modbus TCP 设置路由
func RegisterRoutes(r *gin.Engine, client *gateway.Client, p *poller.Poller, authCfg middleware.AuthConfig, logger *zap.Logger) {
	if r == nil || client == nil {
		return
	}

	handler := NewModbusHandler(client, p, logger)

	v1 := r.Group("/api/v1")
	v1.Use(middleware.RequestID())
	if authCfg.Enabled {
		v1.Use(middleware.APIKeyAuth(authCfg, logger))
		logger.Info("api authentication enabled", zap.Int("api_keys_count", len(authCfg.APIKeys)))
	}

	v1.GET("/modbus-server", handler.GetStatus)
	v1.PUT("/modbus-server", handler.SetStatus)
	v1.POST("/test-connection", handler.TestConnection)
	v1.GET("/gateway", handler.GetInfo)
}
