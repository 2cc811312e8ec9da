package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Inventory InventoryConfig `mapstructure:"inventory"`
	Log       LogConfig       `mapstructure:"log"`
	MQ        MQConfig        `mapstructure:"mq"`
	Outbox    OutboxConfig    `mapstructure:"outbox"`
	Inbox     InboxConfig     `mapstructure:"inbox"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

// TracingConfig 对应pkg/tracing.InitTracer的两个入参
type TracingConfig struct {
	ServiceName  string `mapstructure:"service_name"`
	CollectorURL string `mapstructure:"collector_url"`
}

func (t *TracingConfig) setDefaults() {
	if t.ServiceName == "" {
		t.ServiceName = "inventory-service"
	}
	if t.CollectorURL == "" {
		t.CollectorURL = "localhost:4317"
	}
}

// MQConfig 对应spec §4 transport契约：RabbitMQ连接信息、本服务要消费的
// 命令topic、回复topic以及固定分区数
type MQConfig struct {
	URL            string `mapstructure:"url"`
	Exchange       string `mapstructure:"exchange"`
	CommandTopic   string `mapstructure:"command_topic"`
	ReplyTopic     string `mapstructure:"reply_topic"`
	PartitionCount int    `mapstructure:"partition_count"`
}

func (m *MQConfig) setDefaults() {
	if m.Exchange == "" {
		m.Exchange = "saga-commerce"
	}
	if m.CommandTopic == "" {
		m.CommandTopic = "inventory.commands"
	}
	if m.ReplyTopic == "" {
		m.ReplyTopic = "saga.replies"
	}
	if m.PartitionCount <= 0 {
		m.PartitionCount = 4
	}
}

// OutboxConfig 对应spec §6的outbox.*配置项
type OutboxConfig struct {
	PollIntervalMs int `mapstructure:"poll_interval_ms"`
	BatchSize      int `mapstructure:"batch_size"`
	MaxRetries     int `mapstructure:"max_retries"`
}

func (o *OutboxConfig) setDefaults() {
	if o.PollIntervalMs <= 0 {
		o.PollIntervalMs = 5000
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 5
	}
}

func (o OutboxConfig) PollInterval() time.Duration {
	return time.Duration(o.PollIntervalMs) * time.Millisecond
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

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"`
	DSN             string `mapstructure:"dsn"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
	LogMode         bool   `mapstructure:"log_mode"`
}

type RedisConfig struct {
	Addr         string `mapstructure:"addr"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
}

// InventoryConfig 库存配置
// 教学要点：业务配置与技术配置分离
type InventoryConfig struct {
	EnableCache      bool `mapstructure:"enable_cache"`
	WarningThreshold int  `mapstructure:"warning_threshold"`
	SyncInterval     int  `mapstructure:"sync_interval"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// Load 加载配置文件
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetEnvPrefix("INVENTORY")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.MQ.setDefaults()
	cfg.Outbox.setDefaults()
	cfg.Inbox.setDefaults()
	cfg.Tracing.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}

	return &cfg, nil
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("无效的服务端口: %d", c.Server.Port)
	}

	if c.Database.DSN == "" {
		return fmt.Errorf("数据库DSN不能为空")
	}

	if c.Redis.Addr == "" {
		return fmt.Errorf("Redis地址不能为空")
	}

	return nil
}

func (c *DatabaseConfig) GetConnMaxLifetime() time.Duration {
	return time.Duration(c.ConnMaxLifetime) * time.Second
}

func (c *InventoryConfig) GetSyncInterval() time.Duration {
	return time.Duration(c.SyncInterval) * time.Second
}
