// Package poller 周期性刷新网关 Modbus TCP 状态，
// 缓存最近一次成功结果供只读展示使用
package poller

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/sigen-gateway/internal/gateway"
	"github.com/taoyao-code/sigen-gateway/internal/metrics"
)

// Snapshot 最近一次刷新结果
type Snapshot struct {
	Config    gateway.ModbusServerConfig
	UpdatedAt time.Time
	Err       error // 最近一次刷新的错误（成功时为 nil）
}

// Poller 周期性状态刷新器。刷新失败只记录不致命，
// 缓存保留上一次成功值
type Poller struct {
	client   *gateway.Client
	interval time.Duration
	logger   *zap.Logger
	metrics  *metrics.AppMetrics

	mu      sync.RWMutex
	last    Snapshot
	hasData bool

	stopC chan struct{}
	doneC chan struct{}
}

// New 创建刷新器，interval<=0 时使用 30s
func New(client *gateway.Client, interval time.Duration, logger *zap.Logger, m *metrics.AppMetrics) *Poller {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		client:   client,
		interval: interval,
		logger:   logger,
		metrics:  m,
		stopC:    make(chan struct{}),
		doneC:    make(chan struct{}),
	}
}

// Start 启动后台刷新循环（立即刷新一次）
func (p *Poller) Start(ctx context.Context) {
	go p.run(ctx)
}

// Stop 停止刷新循环并等待退出
func (p *Poller) Stop() {
	close(p.stopC)
	<-p.doneC
}

// Last 返回最近一次快照；尚无数据时 ok=false
func (p *Poller) Last() (Snapshot, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last, p.hasData
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.doneC)

	p.refresh(ctx)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopC:
			return
		case <-ticker.C:
			p.refresh(ctx)
		}
	}
}

// refresh 执行一次状态查询并更新缓存
func (p *Poller) refresh(ctx context.Context) {
	cfg, err := p.client.GetModbusServerStatus(ctx)

	p.mu.Lock()
	if err == nil {
		p.last = Snapshot{Config: cfg, UpdatedAt: time.Now()}
		p.hasData = true
	} else {
		// 保留上一次成功值，只更新错误
		p.last.Err = err
	}
	p.mu.Unlock()

	if p.metrics != nil {
		result := "ok"
		if err != nil {
			result = "error"
		}
		p.metrics.PollTotal.WithLabelValues(result).Inc()
		if p.client.Session().State() == gateway.StateAuthenticated {
			p.metrics.ConnectedGauge.Set(1)
		} else {
			p.metrics.ConnectedGauge.Set(0)
		}
	}

	if err != nil {
		p.logger.Warn("modbus status poll failed", zap.Error(err))
	} else {
		p.logger.Debug("modbus status refreshed",
			zap.Bool("enabled", cfg.Enabled), zap.Int("port", cfg.Port))
	}
}
