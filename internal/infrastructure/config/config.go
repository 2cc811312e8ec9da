package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 全局配置结构
// 设计说明：使用Viper管理配置，支持YAML文件、环境变量覆盖、配置热重载
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Log      LogConfig      `mapstructure:"log"`
	Outbox   OutboxConfig   `mapstructure:"outbox"`
	Saga     SagaConfig     `mapstructure:"saga"`
	MQ       MQConfig       `mapstructure:"mq"`
	Inbox    InboxConfig    `mapstructure:"inbox"`
	Catalog  CatalogConfig  `mapstructure:"catalog_service"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

// TracingConfig 对应pkg/tracing.InitTracer的两个入参，服务名用于在Jaeger UI
// 里分组，collector地址是OTLP collector的gRPC端点
type TracingConfig struct {
	ServiceName  string `mapstructure:"service_name"`
	CollectorURL string `mapstructure:"collector_url"`
}

func (t *TracingConfig) setDefaults() {
	if t.ServiceName == "" {
		t.ServiceName = "order-command-api"
	}
	if t.CollectorURL == "" {
		t.CollectorURL = "localhost:4317"
	}
}

// CatalogConfig 下单用例查价格/标题走的catalog-service gRPC地址，同步查询
// 不经outbox/inbox（那是saga步骤命令的事）
type CatalogConfig struct {
	Addr    string        `mapstructure:"addr"`
	Timeout time.Duration `mapstructure:"timeout_ms"`
}

func (c *CatalogConfig) setDefaults() {
	if c.Addr == "" {
		c.Addr = "localhost:9006"
	}
	if c.Timeout <= 0 {
		c.Timeout = 3 * time.Second
	}
}

// MQConfig 对应spec §4 transport契约：命令API进程的outbox中继经这个transport
// 发布各saga步骤的命令(步骤定义见internal/application/order/saga_definition.go)，
// 同时从同一个transport消费saga.reply事件，驱动orchestrator.OnReply
type MQConfig struct {
	URL            string `mapstructure:"url"`
	Exchange       string `mapstructure:"exchange"`
	ReplyTopic     string `mapstructure:"reply_topic"`
	PartitionCount int    `mapstructure:"partition_count"`
}

func (m *MQConfig) setDefaults() {
	if m.Exchange == "" {
		m.Exchange = "saga-commerce"
	}
	if m.ReplyTopic == "" {
		m.ReplyTopic = "saga.replies"
	}
	if m.PartitionCount <= 0 {
		m.PartitionCount = 4
	}
}

// InboxConfig 对应spec §6的inbox.max_attempts配置项
type InboxConfig struct {
	MaxAttempts int `mapstructure:"max_attempts"`
}

func (i *InboxConfig) setDefaults() {
	if i.MaxAttempts <= 0 {
		i.MaxAttempts = 5
	}
}

// OutboxConfig 对应spec §6的outbox.*配置项
type OutboxConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval_ms"`
	BatchSize    int           `mapstructure:"batch_size"`
	MaxRetries   int           `mapstructure:"max_retries"`
}

func (o *OutboxConfig) setDefaults() {
	if o.PollInterval <= 0 {
		o.PollInterval = 5 * time.Second
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 5
	}
}

// SagaConfig 对应spec §6的saga.*配置项
type SagaConfig struct {
	StepTimeout      time.Duration `mapstructure:"step_timeout_ms"`
	StuckThreshold   time.Duration `mapstructure:"stuck_threshold_ms"`
	RecoveryInterval time.Duration `mapstructure:"recovery_interval_ms"`
}

func (s *SagaConfig) setDefaults() {
	if s.StepTimeout <= 0 {
		s.StepTimeout = 30 * time.Second
	}
	if s.StuckThreshold <= 0 {
		s.StuckThreshold = 120 * time.Second
	}
	if s.RecoveryInterval <= 0 {
		s.RecoveryInterval = 60 * time.Second
	}
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"` // debug | release | test
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	Charset         string        `mapstructure:"charset"`
	ParseTime       bool          `mapstructure:"parse_time"`
	Loc             string        `mapstructure:"loc"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN 生成MySQL连接字符串
// 格式：user:password@tcp(host:port)/dbname?charset=utf8mb4&parseTime=True&loc=Local
// 注意：loc参数需要URL编码（Asia/Shanghai → Asia%2FShanghai）
func (d DatabaseConfig) DSN() string {
	// URL编码loc参数
	loc := url.QueryEscape(d.Loc)
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.Charset, d.ParseTime, loc)
}

type RedisConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Addr 返回Redis地址
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type JWTConfig struct {
	Secret             string        `mapstructure:"secret"`
	AccessTokenExpire  time.Duration `mapstructure:"access_token_expire"`
	RefreshTokenExpire time.Duration `mapstructure:"refresh_token_expire"`
}

type LogConfig struct {
	Level        string `mapstructure:"level"`  // debug | info | warn | error
	Format       string `mapstructure:"format"` // console | json
	Output       string `mapstructure:"output"` // stdout | stderr | /path/to/file
	EnableCaller bool   `mapstructure:"enable_caller"`
}

// Load 加载配置文件
// 支持：
// 1. 默认加载config/config.yaml
// 2. 通过环境变量BOOKSTORE_ENV指定环境（如config.prod.yaml）
// 3. 环境变量覆盖（如BOOKSTORE_DATABASE_PASSWORD）
func Load() (*Config, error) {
	v := viper.New()

	// 设置配置文件路径
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	// 环境特定配置（如config.prod.yaml）
	if env := os.Getenv("BOOKSTORE_ENV"); env != "" {
		v.SetConfigName("config." + env)
	}

	// 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	// 环境变量绑定（自动转换，如BOOKSTORE_DATABASE_PASSWORD → database.password）
	v.SetEnvPrefix("BOOKSTORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 解析到结构体
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.Outbox.setDefaults()
	cfg.Saga.setDefaults()
	cfg.MQ.setDefaults()
	cfg.Inbox.setDefaults()
	cfg.Catalog.setDefaults()
	cfg.Tracing.setDefaults()

	// 配置验证
	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// validate 配置校验
func validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("无效的服务端口: %d", cfg.Server.Port)
	}

	if cfg.JWT.Secret == "your-secret-key-change-in-production" && cfg.Server.Mode == "release" {
		return fmt.Errorf("生产环境必须修改JWT密钥")
	}

	return nil
}
