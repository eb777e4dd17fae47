/*
 * @module service/init
 * @description 服务初始化模块，负责数据库连接、通知渠道、依赖探针、监控服务与调度器的装配
 * @architecture 分层架构 - 服务层
 * @stateFlow 加载配置 -> 连接数据库 -> 构建渠道与探针 -> 创建监控服务 -> 注册周期任务
 * @rules 外部依赖不可用时降级运行（由健康检查报告），不阻止服务启动
 * @dependencies gorm.io/gorm, gorm.io/driver/postgres, github.com/aws/aws-sdk-go-v2
 * @refs service/config/config.go, service/monitoring/monitor_service.go
 */

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"monitoring-service/service/config"
	"monitoring-service/service/distributed_lock"
	"monitoring-service/service/monitoring"
	"monitoring-service/service/rate_limiter"
	"monitoring-service/service/scheduler"
)

// Container 已装配的服务实例
type Container struct {
	Config    *config.Config
	DB        *gorm.DB
	Monitor   *monitoring.MonitorService
	Scheduler *scheduler.SchedulerService
	// IngestLimiter 指标上报限流器，未启用时为 nil
	IngestLimiter *rate_limiter.RedisRateLimiter

	lock *distributed_lock.RedisLock

	awsOnce sync.Once
	awsCfg  aws.Config
	awsErr  error
}

// Init 按配置装配监控服务
func Init(ctx context.Context, cfg *config.Config) (*Container, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置校验失败: %w", err)
	}

	c := &Container{Config: cfg}
	c.DB = openDatabase(cfg)

	channels, err := c.buildChannels(ctx)
	if err != nil {
		return nil, err
	}

	settings := monitoring.ProbeSettings{
		DB:               c.DB,
		StripeAPIURL:     cfg.StripeAPIURL,
		StripeSecretKey:  cfg.StripeSecretKey,
		RTCAppID:         cfg.AgoraAppID,
		RTCCertificate:   cfg.AgoraAppCertificate,
		ResendAPIURL:     cfg.ResendAPIURL,
		ResendAPIKey:     cfg.ResendAPIKey,
		SMSAPIKey:        cfg.SMSAPIKey,
		StorageURL:       cfg.StorageURL,
		StorageAccessKey: cfg.StorageAccessKey,
		StorageBucket:    cfg.StorageBucket,
		HTTPClient:       &http.Client{Timeout: cfg.HTTPClientTimeout},
	}
	if cfg.StorageBucket != "" {
		client, err := c.s3Client(ctx)
		if err != nil {
			slog.Warn("S3客户端初始化失败，文件存储探针降级为配置检查", "error", err)
		} else {
			settings.S3Client = client
		}
	}

	c.Monitor = monitoring.NewMonitorService(monitoring.Options{
		Store:        monitoring.NewMemoryStore(cfg.StoreSweepInterval),
		Channels:     channels,
		Probes:       monitoring.DefaultProbes(settings),
		ProbeTimeout: cfg.ProbeTimeout,
		ServiceName:  cfg.ServiceName,
		Version:      cfg.ServiceVersion,
		Registerer:   prometheus.DefaultRegisterer,
	})

	if cfg.AlertRulesFile != "" {
		if err := c.loadAlertRules(cfg.AlertRulesFile); err != nil {
			return nil, err
		}
	}

	c.initRedis(ctx)
	if c.lock != nil && cfg.IngestRateLimitEnabled() {
		c.IngestLimiter = rate_limiter.NewRedisRateLimiter(c.lock.Client(), rate_limiter.Limits{
			Window:    cfg.IngestRateWindow,
			Global:    cfg.IngestRateLimitGlobal,
			PerClient: cfg.IngestRateLimitClient,
		}, nil)
	} else if cfg.IngestRateLimitEnabled() {
		slog.Warn("未配置可用的Redis，指标上报限流未启用")
	}

	if cfg.SchedulerEnabled {
		if err := c.initScheduler(); err != nil {
			return nil, err
		}
	}

	slog.Info("服务初始化完成",
		"service", cfg.ServiceName,
		"version", cfg.ServiceVersion,
		"channels", len(channels),
		"scheduler", cfg.SchedulerEnabled,
		"ingest_rate_limit", c.IngestLimiter != nil)
	return c, nil
}

// Start 启动后台任务
func (c *Container) Start() {
	if c.Scheduler != nil {
		c.Scheduler.Start()
	}
}

// Close 停止调度器并释放连接
func (c *Container) Close() {
	if c.Scheduler != nil {
		c.Scheduler.Stop()
	}
	if c.lock != nil {
		if err := c.lock.Close(); err != nil {
			slog.Error("关闭Redis连接失败", "error", err)
		}
	}
	if c.DB != nil {
		if sqlDB, err := c.DB.DB(); err == nil {
			sqlDB.Close()
		}
	}
}

// openDatabase 连接数据库，失败时返回 nil，由数据库探针报告不可用
func openDatabase(cfg *config.Config) *gorm.DB {
	db, err := gorm.Open(postgres.Open(cfg.PostgresDSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		slog.Error("数据库连接失败，数据库探针与业务指标采集将报告失败", "error", err)
		return nil
	}
	slog.Info("数据库连接成功")
	return db
}

func (c *Container) buildChannels(ctx context.Context) ([]monitoring.Channel, error) {
	cfg := c.Config

	var transport monitoring.EmailTransport
	switch cfg.EmailService {
	case "ses":
		awsCfg, err := c.aws(ctx)
		if err != nil {
			return nil, fmt.Errorf("加载AWS配置失败: %w", err)
		}
		transport = monitoring.NewSESTransport(sesv2.NewFromConfig(awsCfg))
	default:
		if t := monitoring.NewResendTransport(cfg.ResendAPIURL, cfg.ResendAPIKey, cfg.HTTPClientTimeout); t != nil {
			transport = t
		}
	}

	return []monitoring.Channel{
		monitoring.NewEmailChannel(transport, cfg.AlertFromEmail, cfg.AdminEmail),
		monitoring.NewSlackChannel(cfg.SlackWebhookURL, cfg.HTTPClientTimeout),
		monitoring.NewWebhookChannel(cfg.AlertWebhookURL, cfg.WebhookTimeout),
	}, nil
}

func (c *Container) s3Client(ctx context.Context) (*s3.Client, error) {
	awsCfg, err := c.aws(ctx)
	if err != nil {
		return nil, err
	}
	endpoint := c.Config.StorageURL
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

func (c *Container) aws(ctx context.Context) (aws.Config, error) {
	c.awsOnce.Do(func() {
		c.awsCfg, c.awsErr = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(c.Config.AWSRegion))
	})
	return c.awsCfg, c.awsErr
}

func (c *Container) loadAlertRules(path string) error {
	rules, err := config.LoadAlertRules(path)
	if err != nil {
		return err
	}
	for _, rule := range rules {
		if _, err := c.Monitor.AddAlertRule(rule); err != nil {
			if errors.Is(err, monitoring.ErrRuleExists) {
				slog.Warn("告警规则已存在，跳过", "rule_id", rule.ID)
				continue
			}
			return fmt.Errorf("加载告警规则 %s 失败: %w", rule.ID, err)
		}
	}
	slog.Info("已加载告警规则文件", "path", path, "count", len(rules))
	return nil
}

// initRedis 连接Redis，不可用时周期任务不加锁、上报不限流
func (c *Container) initRedis(ctx context.Context) {
	cfg := c.Config
	if !cfg.RedisEnabled() {
		return
	}
	lock, err := distributed_lock.NewRedisLock(ctx, distributed_lock.RedisOptions{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		slog.Warn("Redis不可用，周期任务不加分布式锁", "error", err)
		return
	}
	c.lock = lock
}

func (c *Container) initScheduler() error {
	var locker *distributed_lock.LockExecutor
	if c.lock != nil {
		locker = distributed_lock.NewLockExecutor(c.lock)
	}

	var source monitoring.BusinessMetricsSource
	if c.DB != nil {
		source = monitoring.NewGormBusinessMetricsSource(c.DB)
	}

	c.Scheduler = scheduler.NewSchedulerService(locker)
	for _, job := range scheduler.MonitoringJobs(c.Monitor, source) {
		if err := c.Scheduler.AddJob(job); err != nil {
			return err
		}
	}
	return nil
}
