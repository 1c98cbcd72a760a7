package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/sigen-gateway/internal/api"
	"github.com/taoyao-code/sigen-gateway/internal/api/middleware"
	cfgpkg "github.com/taoyao-code/sigen-gateway/internal/config"
	"github.com/taoyao-code/sigen-gateway/internal/gateway"
	"github.com/taoyao-code/sigen-gateway/internal/httpserver"
	"github.com/taoyao-code/sigen-gateway/internal/logging"
	"github.com/taoyao-code/sigen-gateway/internal/metrics"
	"github.com/taoyao-code/sigen-gateway/internal/poller"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径（默认 configs/example.yaml 或 SIGEN_CONFIG）")
	flag.Parse()

	// 1) 加载配置
	cfg, err := cfgpkg.Load(*configPath)
	if err != nil {
		panic(err)
	}

	// 2) 初始化日志
	logger, err := logging.InitLogger(cfg.Logging)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)
	log := zap.L()

	// 3) 指标注册与处理器
	reg := metrics.NewRegistry()
	appMetrics := metrics.NewAppMetrics(reg)
	metricsHandler := metrics.Handler(reg)

	// 4) 网关客户端
	client := gateway.New(gateway.Config{
		Credentials: gateway.Credentials{
			Host:     cfg.Gateway.Host,
			WSPort:   cfg.Gateway.WSPort,
			Username: cfg.Gateway.Username,
			Password: cfg.Gateway.Password,
			Serial:   cfg.Gateway.Serial,
		},
		ConnectTimeout:  cfg.Gateway.ConnectTimeout,
		ResponseTimeout: cfg.Gateway.ResponseTimeout,
		CommandsPerSec:  cfg.Gateway.CommandsPerSec,
		CommandBurst:    cfg.Gateway.CommandBurst,
	}, log, appMetrics)
	defer func() { _ = client.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 5) 周期性状态刷新
	var p *poller.Poller
	if cfg.Poll.Enable {
		p = poller.New(client, cfg.Poll.Interval, log, appMetrics)
		p.Start(ctx)
		defer p.Stop()
	}

	// 6) HTTP 服务
	if cfg.App.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	httpSrv := httpserver.New(cfg.HTTP, cfg.Metrics.Path, metricsHandler,
		func() bool { return true },
		func(r *gin.Engine) {
			api.RegisterRoutes(r, client, p, middleware.AuthConfig{
				Enabled: cfg.HTTP.Auth.Enabled,
				APIKeys: cfg.HTTP.Auth.APIKeys,
			}, log)
		},
	)

	go func() {
		log.Info("http server starting", zap.String("addr", cfg.HTTP.Addr))
		if err := httpSrv.Start(); err != nil {
			log.Error("http server error", zap.Error(err))
		}
	}()

	// 信号处理，优雅关闭
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)
}
