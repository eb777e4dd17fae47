/*
 * @module service/config/config
 * @description 服务配置，从环境变量加载监控服务、通知渠道、依赖探针与调度器配置
 * @architecture 分层架构 - 配置层
 * @stateFlow 环境变量 -> 默认值补齐 -> 类型转换 -> 配置校验
 * @rules 所有配置项都有默认值；超时类配置必须为正数
 * @dependencies github.com/spf13/cast
 * @refs service/init.go
 */

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// Config 服务配置
type Config struct {
	// 服务
	ListenPort     string
	BaseContext    string
	ServiceName    string
	ServiceVersion string
	LogLevel       string

	// 数据库
	DatabaseURL string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	DBSSLMode   string
	DBSchema    string

	// Redis（分布式锁）
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// 指标上报限流（需要 Redis，上限为 0 表示不限）
	IngestRateWindow      time.Duration
	IngestRateLimitGlobal int
	IngestRateLimitClient int

	// 邮件
	EmailService   string
	ResendAPIKey   string
	ResendAPIURL   string
	AlertFromEmail string
	AdminEmail     string
	AWSRegion      string

	// Slack / Webhook
	SlackWebhookURL string
	AlertWebhookURL string
	WebhookTimeout  time.Duration

	// 出站 HTTP
	HTTPClientTimeout time.Duration

	// 依赖探针
	StripeSecretKey     string
	StripeAPIURL        string
	AgoraAppID          string
	AgoraAppCertificate string
	SMSAPIKey           string
	StorageURL          string
	StorageAccessKey    string
	StorageBucket       string
	ProbeTimeout        time.Duration

	// 存储与调度
	StoreSweepInterval time.Duration
	SchedulerEnabled   bool
	AlertRulesFile     string
}

// Load 从环境变量加载配置
func Load() *Config {
	return &Config{
		ListenPort:     getEnvWithDefault("LISTEN_PORT", "8080"),
		BaseContext:    getEnvWithDefault("BASE_CONTEXT", ""),
		ServiceName:    getEnvWithDefault("SERVICE_NAME", "monitoring-service"),
		ServiceVersion: getEnvWithDefault("SERVICE_VERSION", "1.0.0"),
		LogLevel:       getEnvWithDefault("LOG_LEVEL", "debug"),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		DBHost:      getEnvWithDefault("DB_HOST", "localhost"),
		DBPort:      getEnvWithDefault("DB_PORT", "5432"),
		DBUser:      getEnvWithDefault("DB_USER", "postgres"),
		DBPassword:  os.Getenv("DB_PASSWORD"),
		DBName:      getEnvWithDefault("DB_NAME", "postgres"),
		DBSSLMode:   getEnvWithDefault("DB_SSLMODE", "disable"),
		DBSchema:    getEnvWithDefault("DB_SCHEMA", "public"),

		RedisHost:     os.Getenv("REDIS_HOST"),
		RedisPort:     getEnvWithDefault("REDIS_PORT", "6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       cast.ToInt(getEnvWithDefault("REDIS_DB", "0")),

		IngestRateWindow:      getDuration("INGEST_RATE_WINDOW", time.Minute),
		IngestRateLimitGlobal: cast.ToInt(getEnvWithDefault("INGEST_RATE_LIMIT_GLOBAL", "0")),
		IngestRateLimitClient: cast.ToInt(getEnvWithDefault("INGEST_RATE_LIMIT_CLIENT", "0")),

		EmailService:   strings.ToLower(getEnvWithDefault("EMAIL_SERVICE", "resend")),
		ResendAPIKey:   os.Getenv("RESEND_API_KEY"),
		ResendAPIURL:   getEnvWithDefault("RESEND_API_URL", "https://api.resend.com"),
		AlertFromEmail: getEnvWithDefault("ALERT_FROM_EMAIL", "alerts@monitoring.local"),
		AdminEmail:     os.Getenv("ADMIN_EMAIL"),
		AWSRegion:      getEnvWithDefault("AWS_REGION", "us-east-1"),

		SlackWebhookURL: os.Getenv("SLACK_WEBHOOK_URL"),
		AlertWebhookURL: os.Getenv("ALERT_WEBHOOK_URL"),
		WebhookTimeout:  getDuration("WEBHOOK_TIMEOUT", 10*time.Second),

		HTTPClientTimeout: getDuration("HTTP_CLIENT_TIMEOUT", 15*time.Second),

		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeAPIURL:        getEnvWithDefault("STRIPE_API_URL", "https://api.stripe.com"),
		AgoraAppID:          os.Getenv("AGORA_APP_ID"),
		AgoraAppCertificate: os.Getenv("AGORA_APP_CERTIFICATE"),
		SMSAPIKey:           os.Getenv("SMS_API_KEY"),
		StorageURL:          os.Getenv("STORAGE_URL"),
		StorageAccessKey:    os.Getenv("STORAGE_ACCESS_KEY"),
		StorageBucket:       os.Getenv("STORAGE_BUCKET"),
		ProbeTimeout:        getDuration("PROBE_TIMEOUT", 5*time.Second),

		StoreSweepInterval: getDuration("STORE_SWEEP_INTERVAL", 0),
		SchedulerEnabled:   cast.ToBool(getEnvWithDefault("SCHEDULER_ENABLED", "true")),
		AlertRulesFile:     os.Getenv("ALERT_RULES_FILE"),
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	var errs []error
	for name, d := range map[string]time.Duration{
		"WEBHOOK_TIMEOUT":     c.WebhookTimeout,
		"HTTP_CLIENT_TIMEOUT": c.HTTPClientTimeout,
		"PROBE_TIMEOUT":       c.ProbeTimeout,
		"INGEST_RATE_WINDOW":  c.IngestRateWindow,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s 必须为正数: %s", name, d))
		}
	}
	if c.StoreSweepInterval < 0 {
		errs = append(errs, fmt.Errorf("STORE_SWEEP_INTERVAL 不能为负数: %s", c.StoreSweepInterval))
	}
	if c.IngestRateLimitGlobal < 0 || c.IngestRateLimitClient < 0 {
		errs = append(errs, errors.New("INGEST_RATE_LIMIT_* 不能为负数"))
	}
	switch c.EmailService {
	case "resend", "ses":
	default:
		errs = append(errs, fmt.Errorf("不支持的 EMAIL_SERVICE: %s", c.EmailService))
	}
	return errors.Join(errs...)
}

// PostgresDSN 数据库连接串，DATABASE_URL 优先
func (c *Config) PostgresDSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s search_path=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode, c.DBSchema)
}

// RedisEnabled 是否配置了 Redis
func (c *Config) RedisEnabled() bool {
	return c.RedisHost != ""
}

// IngestRateLimitEnabled 是否启用指标上报限流
func (c *Config) IngestRateLimitEnabled() bool {
	return c.IngestRateLimitGlobal > 0 || c.IngestRateLimitClient > 0
}

// getEnvWithDefault 获取环境变量，如果不存在则返回默认值
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDuration 支持 "10s" 形式，纯数字按秒处理
func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if n, err := cast.ToInt64E(value); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := cast.ToDurationE(value)
	if err != nil {
		return defaultValue
	}
	return d
}
