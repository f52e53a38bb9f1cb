package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"oip/fsbot/pkg/errorutil"
)

// EnvPrefix 环境变量前缀，例如 FSBOT_SIGNATURE_SECRET
const EnvPrefix = "FSBOT"

// Config 全局配置
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Signature SignatureConfig `mapstructure:"signature"`
	Feishu    FeishuConfig    `mapstructure:"feishu"`
	Lmstfy    LmstfyConfig    `mapstructure:"lmstfy"`
	Redis     RedisConfig     `mapstructure:"redis"`
	MySQL     MySQLConfig     `mapstructure:"mysql"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Breaker   BreakerConfig   `mapstructure:"breaker"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Dedup     DedupConfig     `mapstructure:"dedup"`
}

// AppConfig 应用配置
type AppConfig struct {
	Name     string `mapstructure:"name" validate:"required"`
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"min=1,max=65535"`
	Mode            string        `mapstructure:"mode" validate:"omitempty,oneof=debug release test"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
}

// SignatureConfig 回调签名配置
type SignatureConfig struct {
	Secret            string        `mapstructure:"secret" validate:"required"`
	MaxAge            time.Duration `mapstructure:"max_age" validate:"gt=0"`
	ReplayProtection  bool          `mapstructure:"replay_protection"`
	VerificationToken string        `mapstructure:"verification_token"`
}

// FeishuConfig 开放平台凭证
type FeishuConfig struct {
	AppID     string        `mapstructure:"app_id" validate:"required"`
	AppSecret string        `mapstructure:"app_secret" validate:"required"`
	BaseURL   string        `mapstructure:"base_url" validate:"required,url"`
	Timeout   time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

// LmstfyConfig Lmstfy 配置
type LmstfyConfig struct {
	Host            string        `mapstructure:"host" validate:"required"`
	Port            int           `mapstructure:"port" validate:"min=1,max=65535"`
	Namespace       string        `mapstructure:"namespace" validate:"required"`
	Token           string        `mapstructure:"token"`
	Queue           string        `mapstructure:"queue" validate:"required"`
	DeadLetterQueue string        `mapstructure:"dead_letter_queue"`
	TTL             time.Duration `mapstructure:"ttl"`
	Tries           uint16        `mapstructure:"tries"`
}

// RedisConfig Redis 配置（为空时使用进程内实现）
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

// Enabled 是否配置了 Redis
func (c RedisConfig) Enabled() bool { return c.Addr != "" }

// MySQLConfig MySQL 配置（为空时不落库）
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// Enabled 是否配置了 MySQL
func (c MySQLConfig) Enabled() bool { return c.DSN != "" }

// RetryConfig 重试策略
type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts" validate:"min=0"`
	BaseDelay       time.Duration `mapstructure:"base_delay" validate:"gte=0"`
	MaxDelay        time.Duration `mapstructure:"max_delay" validate:"gtefield=BaseDelay"`
	ExponentialBase float64       `mapstructure:"exponential_base" validate:"gte=1"`
	JitterFraction  float64       `mapstructure:"jitter_fraction" validate:"gte=0,lte=1"`
}

// BreakerConfig 熔断配置
type BreakerConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold" validate:"min=1"`
	RecoveryTimeout  time.Duration `mapstructure:"recovery_timeout" validate:"gt=0"`
}

// WorkerConfig Worker 配置
type WorkerConfig struct {
	Name        string           `mapstructure:"name" validate:"required"`
	BatchSize   int              `mapstructure:"batch_size" validate:"min=1"`
	Concurrency int              `mapstructure:"concurrency" validate:"min=1"`
	Subscriber  SubscriberConfig `mapstructure:"subscriber"`
	Processor   ProcessorConfig  `mapstructure:"processor"`
}

// SubscriberConfig Subscriber 配置
type SubscriberConfig struct {
	Threads      int           `mapstructure:"threads" validate:"min=1"` // 并发拉取数
	Rate         time.Duration `mapstructure:"rate"`                     // 拉取间隔
	Timeout      time.Duration `mapstructure:"timeout"`                  // 拉取阻塞超时
	TTR          time.Duration `mapstructure:"ttr" validate:"gt=0"`      // 可见性窗口
	ErrorBackoff time.Duration `mapstructure:"error_backoff"`            // 错误退避时间
}

// ProcessorConfig Processor 配置
type ProcessorConfig struct {
	Threads    int           `mapstructure:"threads" validate:"min=1"` // 并发处理批次数
	BufferSize int           `mapstructure:"buffer_size" validate:"min=0"`
	Timeout    time.Duration `mapstructure:"timeout" validate:"gt=0"` // 单批次截止时间
}

// DedupConfig 幂等配置
type DedupConfig struct {
	TTL time.Duration `mapstructure:"ttl" validate:"gt=0"`
}

// Load 加载配置文件，path 为空时仅使用默认值与环境变量
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errorutil.NewConfiguration(fmt.Sprintf("read config failed: %v", err)).WithCause(err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errorutil.NewConfiguration(fmt.Sprintf("unmarshal config failed: %v", err)).WithCause(err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "fsbot")
	v.SetDefault("app.env", "dev")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("server.max_body_bytes", 1<<20)

	v.SetDefault("signature.secret", "")
	v.SetDefault("signature.max_age", 300*time.Second)
	v.SetDefault("signature.replay_protection", true)
	v.SetDefault("signature.verification_token", "")

	v.SetDefault("feishu.app_id", "")
	v.SetDefault("feishu.app_secret", "")
	v.SetDefault("feishu.base_url", "https://open.feishu.cn")
	v.SetDefault("feishu.timeout", 10*time.Second)

	v.SetDefault("lmstfy.host", "")
	v.SetDefault("lmstfy.port", 7777)
	v.SetDefault("lmstfy.namespace", "fsbot")
	v.SetDefault("lmstfy.token", "")
	v.SetDefault("lmstfy.queue", "fsbot_messages")
	v.SetDefault("lmstfy.dead_letter_queue", "fsbot_messages_dead")
	v.SetDefault("lmstfy.ttl", 24*time.Hour)
	v.SetDefault("lmstfy.tries", 5)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", "fsbot:outcome")

	v.SetDefault("mysql.dsn", "")

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay", time.Second)
	v.SetDefault("retry.max_delay", 60*time.Second)
	v.SetDefault("retry.exponential_base", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.1)

	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.recovery_timeout", 60*time.Second)

	v.SetDefault("worker.name", "message_reply")
	v.SetDefault("worker.batch_size", 10)
	v.SetDefault("worker.concurrency", 5)
	v.SetDefault("worker.subscriber.threads", 1)
	v.SetDefault("worker.subscriber.rate", 100*time.Millisecond)
	v.SetDefault("worker.subscriber.timeout", 3*time.Second)
	v.SetDefault("worker.subscriber.ttr", 60*time.Second)
	v.SetDefault("worker.subscriber.error_backoff", time.Second)
	v.SetDefault("worker.processor.threads", 1)
	v.SetDefault("worker.processor.buffer_size", 4)
	v.SetDefault("worker.processor.timeout", 50*time.Second)

	v.SetDefault("dedup.ttl", 24*time.Hour)
}

var validate = validator.New()

// ValidateServer 校验 API Server 启动所需配置
func (c *Config) ValidateServer() error {
	return check(c.App, c.Server, c.Signature, c.Lmstfy)
}

// ValidateWorker 校验 Worker 启动所需配置
func (c *Config) ValidateWorker() error {
	if err := check(c.App, c.Feishu, c.Lmstfy, c.Retry, c.Breaker, c.Worker, c.Dedup); err != nil {
		return err
	}
	if c.Worker.Processor.Timeout >= c.Worker.Subscriber.TTR {
		return errorutil.NewConfiguration("worker.processor.timeout must be shorter than worker.subscriber.ttr").
			WithDetails(map[string]interface{}{"field": "worker.processor.timeout"})
	}
	return nil
}

func check(sections ...interface{}) error {
	for _, s := range sections {
		err := validate.Struct(s)
		if err == nil {
			continue
		}
		var fields validator.ValidationErrors
		if errors.As(err, &fields) && len(fields) > 0 {
			f := fields[0]
			return errorutil.NewConfiguration(fmt.Sprintf("config %s failed on %s", f.Namespace(), f.Tag())).
				WithDetails(map[string]interface{}{"field": f.Namespace(), "rule": f.Tag()})
		}
		return errorutil.NewConfiguration(err.Error()).WithCause(err)
	}
	return nil
}
