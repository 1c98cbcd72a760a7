// Package gateway 实现 SigenEnergy 网关 WebSocket 协议客户端：
// 连接生命周期、登录握手、严格FIFO请求响应对应、Modbus TCP 服务命令。
// 协议来自对官方 App 的逆向分析，信封为 JSON 文本帧：
//
//	出站: {"msgType":3,"sn":"<serial>","token":"<token>","data":{"service":"modbusTcpServer","modbusEnable":0|1,"modbusPort":<int>}}
//	入站: {"msgType":4,"code":<int>,"msg":"<string>","data":{...}}
//
// code==0 为成功，其余为网关侧失败，说明在 msg 中
package gateway

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/taoyao-code/sigen-gateway/internal/metrics"
)

// 协议默认值（App 默认配置）
const (
	DefaultWSPort          = 8080
	DefaultModbusPort      = 502
	DefaultConnectTimeout  = 10 * time.Second
	DefaultResponseTimeout = 10 * time.Second
)

// ModbusServerConfig 网关内嵌 Modbus TCP 服务的配置
type ModbusServerConfig struct {
	Enabled bool `json:"enabled"`
	Port    int  `json:"port"`
}

// GatewayInfo 网关诊断信息
type GatewayInfo struct {
	Serial        string    `json:"serial"`
	SessionState  string    `json:"session_state"`
	TokenIssuedAt time.Time `json:"token_issued_at"`
}

// Config 客户端配置
type Config struct {
	Credentials     Credentials
	ConnectTimeout  time.Duration
	ResponseTimeout time.Duration
	// 命令限速：保护网关侧薄弱的管理接口，0 表示不限速
	CommandsPerSec float64
	CommandBurst   int
}

// Client 面向外部消费方的命令客户端。
// 全部操作经由单个 Session 串行执行
type Client struct {
	sess    *Session
	limiter *rate.Limiter
	logger  *zap.Logger
	metrics *metrics.AppMetrics
}

// New 创建客户端，连接与登录均惰性触发
func New(cfg Config, logger *zap.Logger, m *metrics.AppMetrics) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter *rate.Limiter
	if cfg.CommandsPerSec > 0 {
		burst := cfg.CommandBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.CommandsPerSec), burst)
	}
	return &Client{
		sess:    NewSession(cfg.Credentials, cfg.ConnectTimeout, cfg.ResponseTimeout, logger, m),
		limiter: limiter,
		logger:  logger,
		metrics: m,
	}
}

// Session 返回底层会话（诊断用）
func (c *Client) Session() *Session { return c.sess }

// Info 返回当前会话诊断信息
func (c *Client) Info() GatewayInfo {
	return GatewayInfo{
		Serial:        c.sess.SerialNumber(),
		SessionState:  c.sess.State().String(),
		TokenIssuedAt: c.sess.TokenIssuedAt(),
	}
}

// TestConnection 仅执行登录握手，供配置校验流程使用
func (c *Client) TestConnection(ctx context.Context) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	err := c.sess.Login(ctx)
	c.observe("login", err)
	return err
}

// GetModbusServerStatus 查询 Modbus TCP 服务当前配置
func (c *Client) GetModbusServerStatus(ctx context.Context) (ModbusServerConfig, error) {
	var cfg ModbusServerConfig
	if err := c.wait(ctx); err != nil {
		return cfg, err
	}
	env, err := c.sess.Exchange(ctx, MsgTypeGet, ServiceModbusTCP, nil)
	c.observe("get", err)
	if err != nil {
		return cfg, err
	}
	return decodeModbusData(env)
}

// SetModbusServer 写入 Modbus TCP 服务配置（开关 + 监听端口）。
// 端口越界在任何网络IO之前返回 *ValidationError
func (c *Client) SetModbusServer(ctx context.Context, enabled bool, port int) error {
	if err := validatePort(port); err != nil {
		return err
	}
	if err := c.wait(ctx); err != nil {
		return err
	}
	enable := 0
	if enabled {
		enable = 1
	}
	_, err := c.sess.Exchange(ctx, MsgTypeSet, ServiceModbusTCP, map[string]any{
		KeyModbusEnable: enable,
		KeyModbusPort:   port,
	})
	c.observe("set", err)
	if err == nil {
		c.logger.Info("modbus tcp server configured",
			zap.Bool("enabled", enabled), zap.Int("port", port))
	}
	return err
}

// SetModbusEnabled 仅切换开关，先读当前配置以保留端口；
// 读取被网关拒绝时回退默认端口 502
func (c *Client) SetModbusEnabled(ctx context.Context, enabled bool) error {
	port := DefaultModbusPort
	if cur, err := c.GetModbusServerStatus(ctx); err == nil {
		port = cur.Port
	} else if !isRejection(err) {
		return err
	}
	return c.SetModbusServer(ctx, enabled, port)
}

// SetModbusPort 仅修改监听端口，先读当前配置以保留开关状态；
// 读取被网关拒绝时按关闭处理
func (c *Client) SetModbusPort(ctx context.Context, port int) error {
	if err := validatePort(port); err != nil {
		return err
	}
	enabled := false
	if cur, err := c.GetModbusServerStatus(ctx); err == nil {
		enabled = cur.Enabled
	} else if !isRejection(err) {
		return err
	}
	return c.SetModbusServer(ctx, enabled, port)
}

// Close 关闭会话与连接
func (c *Client) Close() error {
	return c.sess.Close()
}

// wait 命令限速（阻塞，受 ctx 截止时间约束）
func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// observe 记录命令结果指标
func (c *Client) observe(op string, err error) {
	if c.metrics == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.metrics.CommandTotal.WithLabelValues(op, result).Inc()
}

// isRejection 判断错误是否为网关明确拒绝（而非传输/认证失败）
func isRejection(err error) bool {
	_, ok := err.(*GatewayRejectedError)
	return ok
}

func validatePort(port int) error {
	if port < 1 || port > 65535 {
		return &ValidationError{Field: "port", Reason: fmt.Sprintf("%d out of range [1,65535]", port)}
	}
	return nil
}
