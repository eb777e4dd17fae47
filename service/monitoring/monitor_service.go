/*
 * @module service/monitoring/monitor_service
 * @description 监控服务，负责指标记录与聚合、告警规则评估与分发、系统健康与性能查询
 * @architecture 分层架构 - 业务服务层
 * @stateFlow 指标记录 -> 样本存储 -> 聚合更新 -> 规则评估 -> 告警分发
 * @rules 单个样本按 存储->聚合->评估->分发 顺序处理；分发完成后 RecordMetric 才返回
 * @dependencies code.cloudfoundry.org/clock, github.com/prometheus/client_golang, golang.org/x/sync/errgroup
 */

package monitoring

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

const (
	sampleTTL          = 24 * time.Hour
	aggregateTTL       = time.Hour
	metricKeyPrefix    = "metric:"
	aggregateKeyPrefix = "aggregated:"
	defaultVersion     = "1.0.0"
)

// Options 监控服务构造参数
type Options struct {
	Store        MetricStore
	Clock        clock.Clock
	Channels     []Channel
	Probes       []Probe
	ProbeTimeout time.Duration
	ServiceName  string
	Version      string
	Registerer   prometheus.Registerer
}

// MonitorService 监控服务
type MonitorService struct {
	store         MetricStore
	clock         clock.Clock
	startedAt     time.Time
	version       string
	metrics       *MetricsCollector
	alertManager  *AlertManager
	dispatcher    *Dispatcher
	healthChecker *HealthChecker

	// 聚合读改写
	aggMu sync.Mutex

	activeConnections atomic.Int64
}

// NewMonitorService 创建监控服务实例
func NewMonitorService(opts Options) *MonitorService {
	if opts.Store == nil {
		opts.Store = NewMemoryStore(0)
	}
	if opts.Clock == nil {
		opts.Clock = clock.NewClock()
	}
	if opts.Version == "" {
		opts.Version = defaultVersion
	}

	metrics := NewMetricsCollector(opts.Registerer)

	return &MonitorService{
		store:         opts.Store,
		clock:         opts.Clock,
		startedAt:     opts.Clock.Now(),
		version:       opts.Version,
		metrics:       metrics,
		alertManager:  NewAlertManager(opts.Store, opts.Clock, opts.ServiceName),
		dispatcher:    NewDispatcher(metrics, opts.Channels...),
		healthChecker: NewHealthChecker(opts.ProbeTimeout, metrics, opts.Probes...),
	}
}

// RecordMetric 记录单个指标样本
func (m *MonitorService) RecordMetric(ctx context.Context, sample MetricSample) {
	if sample.Timestamp.IsZero() {
		sample.Timestamp = m.clock.Now()
	}

	key := fmt.Sprintf("%s%s:%d", metricKeyPrefix, sample.Name, sample.Timestamp.UnixNano())
	m.store.Set(key, sample, sampleTTL)
	m.metrics.sampleRecorded(sample.Name)

	m.updateAggregate(sample)

	for _, t := range m.alertManager.Evaluate(sample) {
		slog.Warn("告警触发",
			"alert_id", t.Alert.ID,
			"rule_id", t.Rule.ID,
			"metric", sample.Name,
			"value", sample.Value,
			"threshold", t.Rule.Threshold,
			"severity", t.Rule.Severity)
		m.metrics.alertTriggered(t.Rule.ID, t.Rule.Severity)
		m.dispatcher.Dispatch(ctx, t.Alert, t.Rule)
	}
	m.metrics.setActiveAlerts(m.alertManager.ActiveAlertCount())
}

// RecordMetrics 并发记录一批样本
func (m *MonitorService) RecordMetrics(ctx context.Context, samples []MetricSample) {
	var g errgroup.Group
	for _, sample := range samples {
		g.Go(func() error {
			m.RecordMetric(ctx, sample)
			return nil
		})
	}
	_ = g.Wait()
}

// RecordAPIMetric 记录一次 API 调用的响应时间、请求数与错误数
func (m *MonitorService) RecordAPIMetric(ctx context.Context, endpoint, method string, responseTimeMs float64, statusCode int, userID string) {
	tags := map[string]string{
		"endpoint":    endpoint,
		"method":      method,
		"status_code": strconv.Itoa(statusCode),
	}
	if userID != "" {
		tags["user_id"] = userID
	}

	now := m.clock.Now()
	m.RecordMetric(ctx, MetricSample{Name: "api_response_time", Value: responseTimeMs, Tags: tags, Timestamp: now})
	m.RecordMetric(ctx, MetricSample{Name: "api_requests_total", Value: 1, Tags: tags, Timestamp: now})
	if statusCode >= 400 {
		m.RecordMetric(ctx, MetricSample{Name: "api_errors_total", Value: 1, Tags: tags, Timestamp: now})
	}
}

// RecordBusinessMetrics 记录已设置的业务指标
func (m *MonitorService) RecordBusinessMetrics(ctx context.Context, metrics BusinessMetrics) {
	now := m.clock.Now()
	for _, sample := range metrics.fields() {
		sample.Timestamp = now
		m.RecordMetric(ctx, sample)
	}
}

// RecordSystemHealth 将健康检查结果记录为指标
func (m *MonitorService) RecordSystemHealth(ctx context.Context, health SystemHealth) {
	now := m.clock.Now()

	m.RecordMetric(ctx, MetricSample{
		Name:      "system_health",
		Value:     boolToFloat(health.Status == HealthStateHealthy),
		Tags:      map[string]string{"status": string(health.Status)},
		Timestamp: now,
	})
	for service, ok := range health.Checks {
		m.RecordMetric(ctx, MetricSample{
			Name:      "service_health",
			Value:     boolToFloat(ok),
			Tags:      map[string]string{"service": service},
			Timestamp: now,
		})
	}
	m.RecordMetric(ctx, MetricSample{
		Name:      "system_uptime",
		Value:     float64(health.Uptime.Milliseconds()),
		Tags:      map[string]string{"version": health.Version},
		Timestamp: now,
	})
}

// GetSystemHealth 执行所有探针并计算系统健康状态
func (m *MonitorService) GetSystemHealth(ctx context.Context) SystemHealth {
	checks, state := m.healthChecker.CheckAll(ctx)
	now := m.clock.Now()
	return SystemHealth{
		Status:    state,
		Checks:    checks,
		LastCheck: now,
		Uptime:    now.Sub(m.startedAt),
		Version:   m.version,
	}
}

// GetPerformanceMetrics 由聚合指标与运行时状态计算性能视图
func (m *MonitorService) GetPerformanceMetrics() PerformanceMetrics {
	perf := PerformanceMetrics{
		MemoryUsage:       memoryUsage(),
		ActiveConnections: m.activeConnections.Load(),
	}

	if stats, ok := m.GetAggregatedMetric("api_response_time"); ok {
		perf.APIResponseTime = stats.Average
	}
	if stats, ok := m.GetAggregatedMetric("database_query_time"); ok {
		perf.DatabaseQueryTime = stats.Average
	}
	if stats, ok := m.GetAggregatedMetric("cpu_usage"); ok {
		perf.CPUUsage = stats.Average
	}

	requests, hasRequests := m.GetAggregatedMetric("api_requests_total")
	if hasRequests {
		// 聚合窗口为 1 小时
		perf.RequestRate = float64(requests.Count) / aggregateTTL.Seconds()
		if errs, ok := m.GetAggregatedMetric("api_errors_total"); ok && requests.Count > 0 {
			perf.ErrorRate = float64(errs.Count) / float64(requests.Count)
		}
	}

	return perf
}

// GetAggregatedMetric 获取指标的聚合统计
func (m *MonitorService) GetAggregatedMetric(name string) (MetricStats, bool) {
	value, ok := m.store.Get(aggregateKeyPrefix + name)
	if !ok {
		return MetricStats{}, false
	}
	agg, ok := value.(AggregatedMetric)
	if !ok || agg.Count == 0 {
		return MetricStats{}, false
	}
	return agg.Stats(), true
}

// GetActiveAlerts 获取未解决的告警
func (m *MonitorService) GetActiveAlerts() []Alert {
	return m.alertManager.GetActiveAlerts()
}

// GetAlert 获取单条告警
func (m *MonitorService) GetAlert(alertID string) (Alert, error) {
	return m.alertManager.GetAlert(alertID)
}

// ResolveAlert 解决告警
func (m *MonitorService) ResolveAlert(alertID string) (Alert, error) {
	alert, err := m.alertManager.ResolveAlert(alertID)
	if err != nil {
		return Alert{}, err
	}
	m.metrics.setActiveAlerts(m.alertManager.ActiveAlertCount())
	slog.Info("告警已解决", "alert_id", alertID)
	return alert, nil
}

// CleanupAlerts 清理过期的已解决告警
func (m *MonitorService) CleanupAlerts(retention time.Duration) int {
	return m.alertManager.CleanupAlerts(retention)
}

// GetAlertRules 获取所有告警规则
func (m *MonitorService) GetAlertRules() []AlertRule {
	return m.alertManager.GetAlertRules()
}

// GetAlertRule 获取单条告警规则
func (m *MonitorService) GetAlertRule(ruleID string) (AlertRule, error) {
	return m.alertManager.GetAlertRule(ruleID)
}

// AddAlertRule 添加告警规则
func (m *MonitorService) AddAlertRule(rule AlertRule) (AlertRule, error) {
	created, err := m.alertManager.AddAlertRule(rule)
	if err != nil {
		return AlertRule{}, err
	}
	slog.Info("告警规则已添加", "rule_id", created.ID, "metric", created.Metric)
	return created, nil
}

// UpdateAlertRule 更新告警规则
func (m *MonitorService) UpdateAlertRule(ruleID string, updates AlertRuleUpdate) (AlertRule, error) {
	return m.alertManager.UpdateAlertRule(ruleID, updates)
}

// DeleteAlertRule 删除告警规则
func (m *MonitorService) DeleteAlertRule(ruleID string) error {
	if err := m.alertManager.DeleteAlertRule(ruleID); err != nil {
		return err
	}
	slog.Info("告警规则已删除", "rule_id", ruleID)
	return nil
}

// TestRule 记录一个必然越限的测试样本，用于验证规则与通知链路
func (m *MonitorService) TestRule(ctx context.Context, rule AlertRule) MetricSample {
	value := rule.Threshold - 1
	if rule.Condition == ConditionGT || rule.Condition == ConditionGTE {
		value = rule.Threshold + 1
	} else if rule.Condition == ConditionEQ {
		value = rule.Threshold
	}

	sample := MetricSample{
		Name:      rule.Metric,
		Value:     value,
		Tags:      map[string]string{"test": "true"},
		Timestamp: m.clock.Now(),
	}
	m.RecordMetric(ctx, sample)
	return sample
}

// TrackConnection 活跃连接计数，返回的函数在请求结束时调用
func (m *MonitorService) TrackConnection() func() {
	m.activeConnections.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() { m.activeConnections.Add(-1) })
	}
}

// SweepExpired 主动清理存储中的过期条目
func (m *MonitorService) SweepExpired() {
	m.store.DeleteExpired()
}

// updateAggregate 更新指标的滚动聚合
func (m *MonitorService) updateAggregate(sample MetricSample) {
	m.aggMu.Lock()
	defer m.aggMu.Unlock()

	key := aggregateKeyPrefix + sample.Name
	agg := AggregatedMetric{Min: math.Inf(1), Max: math.Inf(-1)}
	if value, ok := m.store.Get(key); ok {
		if existing, ok := value.(AggregatedMetric); ok {
			agg = existing
		}
	}

	agg.Count++
	agg.Sum += sample.Value
	agg.Min = math.Min(agg.Min, sample.Value)
	agg.Max = math.Max(agg.Max, sample.Value)
	agg.LastUpdate = m.clock.Now()

	m.store.Set(key, agg, aggregateTTL)
}

// memoryUsage 堆内存占用比例
func memoryUsage() float64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	if stats.HeapSys == 0 {
		return 0
	}
	return float64(stats.HeapAlloc) / float64(stats.HeapSys)
}
