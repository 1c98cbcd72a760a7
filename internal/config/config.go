package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AppConfig 应用基础信息
type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

// GatewayConfig 网关连接配置
type GatewayConfig struct {
	Host            string        `mapstructure:"host"`
	WSPort          int           `mapstructure:"wsPort"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	Serial          string        `mapstructure:"serial"` // 可选预置序列号
	ConnectTimeout  time.Duration `mapstructure:"connectTimeout"`
	ResponseTimeout time.Duration `mapstructure:"responseTimeout"`
	CommandsPerSec  float64       `mapstructure:"commandsPerSec"`
	CommandBurst    int           `mapstructure:"commandBurst"`
}

// HTTPConfig HTTP 服务配置
type HTTPConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
	Auth         AuthConfig    `mapstructure:"auth"`
}

// AuthConfig HTTP API 认证配置
type AuthConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	APIKeys []string `mapstructure:"apiKeys"`
}

// LumberjackConfig 日志滚动（lumberjack）配置
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAge"`
	Compress   bool   `mapstructure:"compress"`
}

// LoggingConfig 日志级别与输出配置
type LoggingConfig struct {
	Level  string           `mapstructure:"level"`
	Format string           `mapstructure:"format"`
	File   LumberjackConfig `mapstructure:"file"`
}

// MetricsConfig Prometheus 指标暴露配置
type MetricsConfig struct {
	Enable bool   `mapstructure:"enable"`
	Path   string `mapstructure:"path"`
}

// PollConfig 周期性状态刷新配置
type PollConfig struct {
	Enable   bool          `mapstructure:"enable"`
	Interval time.Duration `mapstructure:"interval"`
}

// Config 顶层配置结构
type Config struct {
	App     AppConfig     `mapstructure:"app"`
	Gateway GatewayConfig `mapstructure:"gateway"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Poll    PollConfig    `mapstructure:"poll"`
}

// Load 从 YAML/TOML/JSON 文件与环境变量加载配置。
// 若 path 为空，则尝试从环境变量 SIGEN_CONFIG 读取；否则回退到 configs/example.yaml
func Load(path string) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = os.Getenv("SIGEN_CONFIG")
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.SetConfigName("example")
		v.SetConfigType("yaml")
	}

	// 默认值
	setDefaults(v)

	// 环境变量覆盖：前缀 SIGEN_，并将点号替换为下划线
	v.SetEnvPrefix("SIGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// 首次运行允许缺少配置文件，依赖默认值与环境变量
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验无法依赖默认值的必填项
func (c *Config) Validate() error {
	if c.Gateway.WSPort < 1 || c.Gateway.WSPort > 65535 {
		return fmt.Errorf("gateway.wsPort %d out of range", c.Gateway.WSPort)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "sigen-gateway")
	v.SetDefault("app.env", "dev")

	v.SetDefault("gateway.host", "")
	v.SetDefault("gateway.wsPort", 8080)
	v.SetDefault("gateway.username", "")
	v.SetDefault("gateway.password", "")
	v.SetDefault("gateway.serial", "")
	v.SetDefault("gateway.connectTimeout", "10s")
	v.SetDefault("gateway.responseTimeout", "10s")
	v.SetDefault("gateway.commandsPerSec", 5)
	v.SetDefault("gateway.commandBurst", 5)

	v.SetDefault("http.addr", ":8099")
	v.SetDefault("http.readTimeout", "5s")
	v.SetDefault("http.writeTimeout", "10s")
	v.SetDefault("http.auth.enabled", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file.filename", "logs/sigen-gateway.log")
	v.SetDefault("logging.file.maxSize", 100)
	v.SetDefault("logging.file.maxBackups", 7)
	v.SetDefault("logging.file.maxAge", 30)
	v.SetDefault("logging.file.compress", true)

	v.SetDefault("metrics.enable", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("poll.enable", true)
	v.SetDefault("poll.interval", "30s")
}
