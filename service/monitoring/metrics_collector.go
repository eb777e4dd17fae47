/*
 * @module service/monitoring/metrics_collector
 * @description 监控子系统自身的 Prometheus 指标：样本计数、告警触发、通知结果与健康检查状态
 * @architecture 分层架构 - 可观测性层
 * @stateFlow 监控事件 -> 计数器/仪表更新 -> /metrics 暴露
 * @rules 收集器为 nil 时所有方法均为空操作
 * @dependencies github.com/prometheus/client_golang
 */

package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector 监控子系统指标收集器
type MetricsCollector struct {
	samplesRecorded    *prometheus.CounterVec
	alertsTriggered    *prometheus.CounterVec
	notifications      *prometheus.CounterVec
	probeUp            *prometheus.GaugeVec
	systemHealthStatus prometheus.Gauge
	activeAlerts       prometheus.Gauge
}

// NewMetricsCollector 创建并注册指标收集器
func NewMetricsCollector(reg prometheus.Registerer) *MetricsCollector {
	c := &MetricsCollector{
		samplesRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "monitoring",
			Name:      "samples_recorded_total",
			Help:      "Number of metric samples recorded, by metric name.",
		}, []string{"metric"}),
		alertsTriggered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "monitoring",
			Name:      "alerts_triggered_total",
			Help:      "Number of alerts triggered, by rule and severity.",
		}, []string{"rule", "severity"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "monitoring",
			Name:      "notifications_total",
			Help:      "Notification deliveries, by channel and result.",
		}, []string{"channel", "result"}),
		probeUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "monitoring",
			Name:      "probe_up",
			Help:      "Result of the last dependency probe (1 up, 0 down).",
		}, []string{"probe"}),
		systemHealthStatus: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "monitoring",
			Name:      "system_health_status",
			Help:      "Last system health verdict (2 healthy, 1 degraded, 0 unhealthy).",
		}),
		activeAlerts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "monitoring",
			Name:      "active_alerts",
			Help:      "Number of unresolved alerts.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			c.samplesRecorded,
			c.alertsTriggered,
			c.notifications,
			c.probeUp,
			c.systemHealthStatus,
			c.activeAlerts,
		)
	}

	return c
}

func (c *MetricsCollector) sampleRecorded(metric string) {
	if c == nil {
		return
	}
	c.samplesRecorded.WithLabelValues(metric).Inc()
}

func (c *MetricsCollector) alertTriggered(ruleID string, severity Severity) {
	if c == nil {
		return
	}
	c.alertsTriggered.WithLabelValues(ruleID, string(severity)).Inc()
}

func (c *MetricsCollector) notificationResult(channel ChannelKind, err error) {
	if c == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	c.notifications.WithLabelValues(string(channel), result).Inc()
}

func (c *MetricsCollector) probeResult(probe string, ok bool) {
	if c == nil {
		return
	}
	c.probeUp.WithLabelValues(probe).Set(boolToFloat(ok))
}

func (c *MetricsCollector) healthStatus(state HealthState) {
	if c == nil {
		return
	}
	switch state {
	case HealthStateHealthy:
		c.systemHealthStatus.Set(2)
	case HealthStateDegraded:
		c.systemHealthStatus.Set(1)
	default:
		c.systemHealthStatus.Set(0)
	}
}

func (c *MetricsCollector) setActiveAlerts(n int) {
	if c == nil {
		return
	}
	c.activeAlerts.Set(float64(n))
}

func boolToFloat(ok bool) float64 {
	if ok {
		return 1
	}
	return 0
}
