package monitoring

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// AlertRetention 已解决告警的保留期
const AlertRetention = 7 * 24 * time.Hour

// RunHealthCheck 执行健康检查并把结果记录为指标
// 检查过程 panic 或上下文取消时记录 health_check_failed
func RunHealthCheck(ctx context.Context, m *MonitorService) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("健康检查失败: %w", &panicError{value: r})
		}
		if err != nil {
			m.RecordMetric(context.WithoutCancel(ctx), MetricSample{
				Name:  "health_check_failed",
				Value: 1,
				Tags:  map[string]string{"error": err.Error()},
			})
		}
	}()

	health := m.GetSystemHealth(ctx)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("健康检查被中断: %w", ctxErr)
	}

	m.RecordSystemHealth(ctx, health)
	m.RecordMetric(ctx, MetricSample{
		Name:  "database_health",
		Value: boolToFloat(health.Checks[ProbeDatabase]),
		Tags:  map[string]string{"service": ProbeDatabase},
	})
	m.RecordMetric(ctx, MetricSample{
		Name:  "memory_usage",
		Value: memoryUsage(),
		Tags:  map[string]string{"type": "system"},
	})

	slog.Info("健康检查完成", "status", health.Status, "checks", health.Checks)
	return nil
}

// RunBusinessMetrics 采集并记录业务指标；部分采集失败时仍记录已取得的指标
func RunBusinessMetrics(ctx context.Context, m *MonitorService, source BusinessMetricsSource) error {
	if source == nil {
		return fmt.Errorf("%w: business metrics source", ErrProbeNotConfigured)
	}

	metrics, err := source.Collect(ctx)
	m.RecordBusinessMetrics(ctx, metrics)
	if err != nil {
		return fmt.Errorf("采集业务指标失败: %w", err)
	}

	slog.Info("业务指标采集完成")
	return nil
}

// RunAlertCleanup 清理超过保留期的已解决告警
func RunAlertCleanup(ctx context.Context, m *MonitorService) error {
	removed := m.CleanupAlerts(AlertRetention)
	slog.Info("告警清理完成", "removed", removed)
	return nil
}

// RunMaintenance 日常维护：清扫存储中的过期条目
func RunMaintenance(ctx context.Context, m *MonitorService) error {
	m.SweepExpired()
	slog.Info("系统维护完成")
	return nil
}
