/*
 * @module service/monitoring/monitor_service_test
 * @description 监控服务测试：聚合、告警分发链路、健康与性能查询
 * @architecture 测试层
 * @dependencies stretchr/testify, code.cloudfoundry.org/clock/fakeclock, net/http/httptest
 */

package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	helper "monitoring-service/testutil"
)

func TestRecordMetric_AggregateRecurrence(t *testing.T) {
	m, _ := newTestMonitor(t, nil)
	ctx := context.Background()

	values := []float64{5, 1, 9, 3}
	for _, v := range values {
		m.RecordMetric(ctx, MetricSample{Name: "latency", Value: v})
	}

	stats, ok := m.GetAggregatedMetric("latency")
	require.True(t, ok)
	assert.Equal(t, uint64(4), stats.Count)
	assert.Equal(t, 1.0, stats.Min)
	assert.Equal(t, 9.0, stats.Max)
	assert.Equal(t, 4.5, stats.Average)
	assert.LessOrEqual(t, stats.Min, stats.Average)
	assert.LessOrEqual(t, stats.Average, stats.Max)

	_, ok = m.GetAggregatedMetric("unknown")
	assert.False(t, ok)
}

func TestRecordMetric_StoresSampleWithTimestamp(t *testing.T) {
	store := NewMemoryStore(0)
	m := NewMonitorService(Options{Store: store})

	ts := testEpoch.Add(time.Second)
	m.RecordMetric(context.Background(), MetricSample{Name: "queue_depth", Value: 7, Timestamp: ts})

	value, ok := store.Get(fmt.Sprintf("metric:queue_depth:%d", ts.UnixNano()))
	require.True(t, ok)
	assert.Equal(t, 7.0, value.(MetricSample).Value)

	agg, ok := store.Get("aggregated:queue_depth")
	require.True(t, ok)
	assert.Equal(t, uint64(1), agg.(AggregatedMetric).Count)
}

func TestRecordMetrics_ConcurrentAggregation(t *testing.T) {
	m, _ := newTestMonitor(t, nil)

	samples := make([]MetricSample, 100)
	for i := range samples {
		samples[i] = MetricSample{Name: "throughput", Value: float64(i)}
	}
	m.RecordMetrics(context.Background(), samples)

	stats, ok := m.GetAggregatedMetric("throughput")
	require.True(t, ok)
	assert.Equal(t, uint64(100), stats.Count)
	assert.Equal(t, 0.0, stats.Min)
	assert.Equal(t, 99.0, stats.Max)
	assert.Equal(t, 49.5, stats.Average)
}

func TestRecordAPIMetric_SlowResponseTriggersSlackOnly(t *testing.T) {
	slackServer := helper.NewRecordingServer(http.StatusOK)
	defer slackServer.Close()

	ch := newTestChannels()
	slack := NewSlackChannel(slackServer.URL, time.Second)
	m, _ := newTestMonitor(t, []Channel{ch.email, slack, ch.webhook})

	m.RecordAPIMetric(context.Background(), "/api/orders", http.MethodGet, 2500, http.StatusOK, "")

	alerts := m.GetActiveAlerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, SeverityMedium, alerts[0].Severity)
	assert.Equal(t, "slow_response_time", alerts[0].RuleID)
	assert.Equal(t, "/api/orders", alerts[0].Metadata["endpoint"])

	reqs := slackServer.Requests()
	require.Len(t, reqs, 1, "分发在 RecordAPIMetric 返回前完成")
	var msg slackMessage
	require.NoError(t, json.Unmarshal(reqs[0].Body, &msg))
	assert.Contains(t, msg.Text, "Slow API Response Time")

	assert.Equal(t, 0, ch.email.count())
	assert.Equal(t, 0, ch.webhook.count())

	_, ok := m.GetAggregatedMetric("api_errors_total")
	assert.False(t, ok, "2xx 不记录错误数")
}

func TestRecordAPIMetric_ErrorsAndPerformance(t *testing.T) {
	m, _ := newTestMonitor(t, nil)
	ctx := context.Background()

	m.RecordAPIMetric(ctx, "/api/orders", http.MethodPost, 100, http.StatusCreated, "u1")
	m.RecordAPIMetric(ctx, "/api/orders", http.MethodPost, 300, http.StatusInternalServerError, "u1")
	m.RecordAPIMetric(ctx, "/api/users", http.MethodGet, 200, http.StatusOK, "")
	m.RecordAPIMetric(ctx, "/api/users", http.MethodGet, 400, http.StatusNotFound, "")
	m.RecordMetric(ctx, MetricSample{Name: "database_query_time", Value: 12})

	done := m.TrackConnection()
	perf := m.GetPerformanceMetrics()
	done()
	done()

	assert.Equal(t, 250.0, perf.APIResponseTime)
	assert.Equal(t, 12.0, perf.DatabaseQueryTime)
	assert.Equal(t, 0.5, perf.ErrorRate)
	assert.InDelta(t, 4.0/3600, perf.RequestRate, 1e-9)
	assert.Equal(t, int64(1), perf.ActiveConnections)
	assert.Equal(t, int64(0), m.GetPerformanceMetrics().ActiveConnections, "结束函数只生效一次")
}

func TestRecordMetric_RepeatedBreachesDispatchEachTime(t *testing.T) {
	ch := newTestChannels()
	reg := prometheus.NewRegistry()
	m := NewMonitorService(Options{Channels: ch.all(), Registerer: reg})

	for i := 0; i < 3; i++ {
		m.RecordMetric(context.Background(), MetricSample{Name: "error_rate", Value: 0.2})
	}

	assert.Len(t, m.GetActiveAlerts(), 3)
	assert.Equal(t, 3, ch.email.count())
	assert.Equal(t, 3, ch.slack.count())
	assert.Equal(t, 0, ch.webhook.count())
	assert.Equal(t, 3.0, testutil.ToFloat64(m.metrics.alertsTriggered.WithLabelValues("high_error_rate", "high")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.metrics.activeAlerts))

	_, err := m.ResolveAlert(m.GetActiveAlerts()[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.metrics.activeAlerts))
}

func TestRecordBusinessMetrics_TagsAndRules(t *testing.T) {
	ch := newTestChannels()
	m, _ := newTestMonitor(t, ch.all())

	m.RecordBusinessMetrics(context.Background(), BusinessMetrics{
		TotalOrders:         floatPtr(120),
		OrderCompletionRate: floatPtr(0.7),
	})

	_, ok := m.GetAggregatedMetric("total_orders")
	assert.True(t, ok)
	_, ok = m.GetAggregatedMetric("active_users")
	assert.False(t, ok, "未设置的字段不记录")

	alerts := m.GetActiveAlerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, "low_order_completion", alerts[0].RuleID)
	assert.Equal(t, "business", alerts[0].Metadata["type"])
}

func TestGetSystemHealth(t *testing.T) {
	m, clk := newTestMonitor(t, nil,
		staticProbe("database", true),
		staticProbe("payments", true),
		staticProbe("realtime", true),
		staticProbe("external_apis", true),
	)
	clk.Increment(90 * time.Second)

	health := m.GetSystemHealth(context.Background())
	assert.Equal(t, HealthStateHealthy, health.Status)
	assert.Len(t, health.Checks, 4)
	assert.Equal(t, 90*time.Second, health.Uptime)
	assert.Equal(t, "test", health.Version)
	assert.Equal(t, testEpoch.Add(90*time.Second), health.LastCheck)
}

func TestRecordSystemHealth(t *testing.T) {
	m, _ := newTestMonitor(t, nil)

	m.RecordSystemHealth(context.Background(), SystemHealth{
		Status:  HealthStateDegraded,
		Checks:  map[string]bool{"database": true, "payments": false},
		Uptime:  2 * time.Second,
		Version: "1.2.3",
	})

	health, ok := m.GetAggregatedMetric("system_health")
	require.True(t, ok)
	assert.Equal(t, 0.0, health.Max)

	services, ok := m.GetAggregatedMetric("service_health")
	require.True(t, ok)
	assert.Equal(t, uint64(2), services.Count)
	assert.Equal(t, 0.5, services.Average)

	uptime, ok := m.GetAggregatedMetric("system_uptime")
	require.True(t, ok)
	assert.Equal(t, 2000.0, uptime.Max)
}

func TestTestRule(t *testing.T) {
	ch := newTestChannels()
	m, _ := newTestMonitor(t, ch.all())

	rule, err := m.AddAlertRule(AlertRule{
		ID:        "queue_backlog",
		Name:      "Queue Backlog",
		Metric:    "queue_depth",
		Condition: ConditionLTE,
		Threshold: 10,
		Severity:  SeverityLow,
		Channels:  []ChannelKind{ChannelWebhook},
		Enabled:   true,
	})
	require.NoError(t, err)

	sample := m.TestRule(context.Background(), rule)
	assert.Equal(t, 9.0, sample.Value)
	assert.Equal(t, "true", sample.Tags["test"])
	assert.Equal(t, 1, ch.webhook.count())

	eq := AlertRule{Metric: "database_health", Condition: ConditionEQ, Threshold: 0}
	assert.Equal(t, 0.0, m.TestRule(context.Background(), eq).Value)
	gt := AlertRule{Metric: "other", Condition: ConditionGT, Threshold: 5}
	assert.Equal(t, 6.0, m.TestRule(context.Background(), gt).Value)
}

func TestRecordMetric_ConcurrentRuleChanges(t *testing.T) {
	m, _ := newTestMonitor(t, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			m.RecordMetric(ctx, MetricSample{Name: "api_response_time", Value: 3000})
		}()
		go func() {
			defer wg.Done()
			id := fmt.Sprintf("rule_%d", i)
			_, err := m.AddAlertRule(AlertRule{ID: id, Metric: "x", Condition: ConditionGT, Severity: SeverityLow})
			assert.NoError(t, err)
			assert.NoError(t, m.DeleteAlertRule(id))
		}()
	}
	wg.Wait()

	assert.Len(t, m.GetActiveAlerts(), 20)
	assert.Len(t, m.GetAlertRules(), 5)
}
