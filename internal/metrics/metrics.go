package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry 创建自定义 Prometheus Registry，并注册常用采集器
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler 返回 Prometheus 指标 HTTP 处理器
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// AppMetrics 自定义业务指标
type AppMetrics struct {
	ConnectTotal   prometheus.Counter     // WebSocket 连接建立次数
	FramesSent     prometheus.Counter     // 发送帧数
	FramesReceived prometheus.Counter     // 接收帧数
	ReloginTotal   prometheus.Counter     // 透明重登录次数
	CommandTotal   *prometheus.CounterVec // labels: op=login|get|set, result=ok|error
	ConnectedGauge prometheus.Gauge       // 会话是否已认证 0|1
	PollTotal      *prometheus.CounterVec // labels: result=ok|error
}

// NewAppMetrics 注册并返回业务指标
func NewAppMetrics(reg *prometheus.Registry) *AppMetrics {
	m := &AppMetrics{
		ConnectTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_ws_connect_total",
			Help: "Total WebSocket connections established to the gateway.",
		}),
		FramesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_ws_frames_sent_total",
			Help: "Total text frames sent to the gateway.",
		}),
		FramesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_ws_frames_received_total",
			Help: "Total text frames received from the gateway.",
		}),
		ReloginTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_relogin_total",
			Help: "Transparent re-login attempts after a rejected token.",
		}),
		CommandTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_command_total",
			Help: "Gateway commands by operation and result.",
		}, []string{"op", "result"}),
		ConnectedGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_session_authenticated",
			Help: "Whether the gateway session is currently authenticated.",
		}),
		PollTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_poll_total",
			Help: "Periodic status poll attempts by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.ConnectTotal, m.FramesSent, m.FramesReceived, m.ReloginTotal, m.CommandTotal, m.ConnectedGauge, m.PollTotal)
	return m
}
