/*
 * @module service/monitoring/types
 * @description 监控核心的数据模型定义：指标样本、聚合指标、告警规则、告警实例与系统健康状态
 * @architecture 分层架构 - 业务服务层
 * @stateFlow 指标样本 -> 聚合指标 -> 告警规则评估 -> 告警实例 (open -> resolved)
 * @rules 样本一经记录不可变；告警只能通过显式调用解决
 * @dependencies time
 */

package monitoring

import (
	"slices"
	"time"
)

// Severity 告警严重级别
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
)

// Valid 判断严重级别是否合法
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical, SeverityWarning:
		return true
	}
	return false
}

// Condition 告警比较条件
type Condition string

const (
	ConditionGT  Condition = "gt"
	ConditionGTE Condition = "gte"
	ConditionLT  Condition = "lt"
	ConditionLTE Condition = "lte"
	ConditionEQ  Condition = "eq"
)

// Valid 判断比较条件是否合法
func (c Condition) Valid() bool {
	switch c {
	case ConditionGT, ConditionGTE, ConditionLT, ConditionLTE, ConditionEQ:
		return true
	}
	return false
}

// Compare 按条件比较指标值与阈值
// eq 为精确比较，不带误差容忍，连续型指标上使用会不稳定
func (c Condition) Compare(value, threshold float64) bool {
	switch c {
	case ConditionGT:
		return value > threshold
	case ConditionGTE:
		return value >= threshold
	case ConditionLT:
		return value < threshold
	case ConditionLTE:
		return value <= threshold
	case ConditionEQ:
		return value == threshold
	default:
		return false
	}
}

// HealthState 系统健康三态
type HealthState string

const (
	HealthStateHealthy   HealthState = "healthy"
	HealthStateDegraded  HealthState = "degraded"
	HealthStateUnhealthy HealthState = "unhealthy"
)

// MetricSample 指标样本
type MetricSample struct {
	Name      string            `json:"name"`
	Value     float64           `json:"value"`
	Tags      map[string]string `json:"tags,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// AggregatedMetric 按指标名维护的滚动聚合
type AggregatedMetric struct {
	Count      uint64    `json:"count"`
	Sum        float64   `json:"sum"`
	Min        float64   `json:"min"`
	Max        float64   `json:"max"`
	LastUpdate time.Time `json:"last_update"`
}

// Stats 转换为统计视图
func (a AggregatedMetric) Stats() MetricStats {
	stats := MetricStats{Min: a.Min, Max: a.Max, Count: a.Count}
	if a.Count > 0 {
		stats.Average = a.Sum / float64(a.Count)
	}
	return stats
}

// MetricStats 聚合指标的统计视图
type MetricStats struct {
	Average float64 `json:"average"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Count   uint64  `json:"count"`
}

// AlertRule 告警规则
type AlertRule struct {
	ID          string    `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Metric      string    `json:"metric" yaml:"metric"`
	Condition   Condition `json:"condition" yaml:"condition"`
	Threshold   float64   `json:"threshold" yaml:"threshold"`
	// Duration 持续时间（秒），当前评估器不使用，保留给滑动窗口评估
	Duration        int           `json:"duration" yaml:"duration"`
	Severity        Severity      `json:"severity" yaml:"severity"`
	Channels        []ChannelKind `json:"channels" yaml:"channels"`
	Enabled         bool          `json:"enabled" yaml:"enabled"`
	EmailRecipients []string      `json:"email_recipients,omitempty" yaml:"email_recipients,omitempty"`
	WebhookURLs     []string      `json:"webhook_urls,omitempty" yaml:"webhook_urls,omitempty"`
}

// Clone 深拷贝规则
func (r AlertRule) Clone() AlertRule {
	r.Channels = slices.Clone(r.Channels)
	r.EmailRecipients = slices.Clone(r.EmailRecipients)
	r.WebhookURLs = slices.Clone(r.WebhookURLs)
	return r
}

// AlertRuleUpdate 告警规则部分更新，nil 字段保持不变
type AlertRuleUpdate struct {
	Name            *string       `json:"name,omitempty"`
	Description     *string       `json:"description,omitempty"`
	Metric          *string       `json:"metric,omitempty"`
	Condition       *Condition    `json:"condition,omitempty"`
	Threshold       *float64      `json:"threshold,omitempty"`
	Duration        *int          `json:"duration,omitempty"`
	Severity        *Severity     `json:"severity,omitempty"`
	Channels        []ChannelKind `json:"channels,omitempty"`
	Enabled         *bool         `json:"enabled,omitempty"`
	EmailRecipients []string      `json:"email_recipients,omitempty"`
	WebhookURLs     []string      `json:"webhook_urls,omitempty"`
}

// apply 将更新应用到规则副本上
func (u AlertRuleUpdate) apply(rule AlertRule) AlertRule {
	if u.Name != nil {
		rule.Name = *u.Name
	}
	if u.Description != nil {
		rule.Description = *u.Description
	}
	if u.Metric != nil {
		rule.Metric = *u.Metric
	}
	if u.Condition != nil {
		rule.Condition = *u.Condition
	}
	if u.Threshold != nil {
		rule.Threshold = *u.Threshold
	}
	if u.Duration != nil {
		rule.Duration = *u.Duration
	}
	if u.Severity != nil {
		rule.Severity = *u.Severity
	}
	if u.Channels != nil {
		rule.Channels = slices.Clone(u.Channels)
	}
	if u.Enabled != nil {
		rule.Enabled = *u.Enabled
	}
	if u.EmailRecipients != nil {
		rule.EmailRecipients = slices.Clone(u.EmailRecipients)
	}
	if u.WebhookURLs != nil {
		rule.WebhookURLs = slices.Clone(u.WebhookURLs)
	}
	return rule
}

// Alert 告警实例
type Alert struct {
	ID         string            `json:"id"`
	RuleID     string            `json:"rule_id"`
	Title      string            `json:"title"`
	Metric     string            `json:"metric"`
	Value      float64           `json:"value"`
	Threshold  float64           `json:"threshold"`
	Severity   Severity          `json:"severity"`
	Message    string            `json:"message"`
	Timestamp  time.Time         `json:"timestamp"`
	Resolved   bool              `json:"resolved"`
	ResolvedAt *time.Time        `json:"resolved_at,omitempty"`
	Service    string            `json:"service,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// SystemHealth 系统健康状态
type SystemHealth struct {
	Status    HealthState     `json:"status"`
	Checks    map[string]bool `json:"checks"`
	LastCheck time.Time       `json:"last_check"`
	Uptime    time.Duration   `json:"uptime"`
	Version   string          `json:"version"`
}

// PerformanceMetrics 性能指标视图
type PerformanceMetrics struct {
	APIResponseTime   float64 `json:"api_response_time"`
	DatabaseQueryTime float64 `json:"database_query_time"`
	MemoryUsage       float64 `json:"memory_usage"`
	CPUUsage          float64 `json:"cpu_usage"`
	ActiveConnections int64   `json:"active_connections"`
	ErrorRate         float64 `json:"error_rate"`
	RequestRate       float64 `json:"request_rate"`
}

// BusinessMetrics 业务指标，nil 字段不记录
type BusinessMetrics struct {
	TotalOrders          *float64 `json:"total_orders,omitempty"`
	TotalRevenue         *float64 `json:"total_revenue,omitempty"`
	ActiveUsers          *float64 `json:"active_users,omitempty"`
	ActiveChefs          *float64 `json:"active_chefs,omitempty"`
	ActiveDrivers        *float64 `json:"active_drivers,omitempty"`
	LiveSessions         *float64 `json:"live_sessions,omitempty"`
	OrderCompletionRate  *float64 `json:"order_completion_rate,omitempty"`
	CustomerSatisfaction *float64 `json:"customer_satisfaction,omitempty"`
}

// fields 以固定顺序返回已设置的业务指标
func (b BusinessMetrics) fields() []MetricSample {
	pairs := []struct {
		name  string
		value *float64
	}{
		{"total_orders", b.TotalOrders},
		{"total_revenue", b.TotalRevenue},
		{"active_users", b.ActiveUsers},
		{"active_chefs", b.ActiveChefs},
		{"active_drivers", b.ActiveDrivers},
		{"live_sessions", b.LiveSessions},
		{"order_completion_rate", b.OrderCompletionRate},
		{"customer_satisfaction", b.CustomerSatisfaction},
	}

	samples := make([]MetricSample, 0, len(pairs))
	for _, p := range pairs {
		if p.value == nil {
			continue
		}
		samples = append(samples, MetricSample{
			Name:  p.name,
			Value: *p.value,
			Tags:  map[string]string{"type": "business"},
		})
	}
	return samples
}
