/*
 * @module service/monitoring/notification
 * @description 通知渠道接口与告警分发器，将触发的告警并发扇出到邮件、Slack、Webhook 渠道
 * @architecture 分层架构 - 业务服务层
 * @stateFlow 告警触发 -> 渠道选择 -> 并发发送 -> 结果记录
 * @rules 渠道之间失败隔离，全部发送完成后返回；不重试；分发器从不向调用方返回错误
 * @dependencies golang.org/x/sync/errgroup, log/slog
 */

package monitoring

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	notificationSource     = "Monitoring Service"
	defaultHTTPSendTimeout = 15 * time.Second
)

// ChannelKind 通知渠道类型
type ChannelKind string

const (
	ChannelEmail   ChannelKind = "email"
	ChannelSlack   ChannelKind = "slack"
	ChannelWebhook ChannelKind = "webhook"
)

// Valid 判断渠道类型是否属于已知集合
func (k ChannelKind) Valid() bool {
	switch k {
	case ChannelEmail, ChannelSlack, ChannelWebhook:
		return true
	}
	return false
}

// Channel 通知渠道
type Channel interface {
	Kind() ChannelKind
	Send(ctx context.Context, alert *Alert, rule *AlertRule) error
}

// HTTPDoer 出站 HTTP 客户端，便于测试替换
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// newHTTPClient 带超时的默认客户端，避免分发器被挂起
func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultHTTPSendTimeout
	}
	return &http.Client{Timeout: timeout}
}

// Dispatcher 告警分发器
type Dispatcher struct {
	channels map[ChannelKind]Channel
	metrics  *MetricsCollector
}

// NewDispatcher 创建告警分发器，同类渠道后注册的覆盖先注册的
func NewDispatcher(metrics *MetricsCollector, channels ...Channel) *Dispatcher {
	d := &Dispatcher{
		channels: make(map[ChannelKind]Channel),
		metrics:  metrics,
	}
	for _, ch := range channels {
		if ch == nil {
			continue
		}
		d.channels[ch.Kind()] = ch
	}
	return d
}

// Dispatch 将告警发送到规则配置的所有渠道
// 各渠道并发发送，单个渠道失败只记录日志，不影响其他渠道
func (d *Dispatcher) Dispatch(ctx context.Context, alert Alert, rule AlertRule) {
	var g errgroup.Group
	seen := make(map[ChannelKind]bool, len(rule.Channels))

	for _, kind := range rule.Channels {
		if seen[kind] {
			continue
		}
		seen[kind] = true

		ch, ok := d.channels[kind]
		if !ok {
			slog.Warn("通知渠道未注册，跳过", "channel", kind, "rule_id", rule.ID)
			continue
		}

		g.Go(func() error {
			err := safeSend(ctx, ch, &alert, &rule)
			d.metrics.notificationResult(kind, err)
			if err != nil {
				slog.Error("发送告警通知失败",
					"channel", kind,
					"rule_id", rule.ID,
					"alert_id", alert.ID,
					"error", err)
				return nil
			}
			slog.Info("告警通知发送成功", "channel", kind, "rule", rule.Name, "alert_id", alert.ID)
			return nil
		})
	}

	_ = g.Wait()
}

// safeSend 发送并把渠道内部的 panic 转为错误
func safeSend(ctx context.Context, ch Channel, alert *Alert, rule *AlertRule) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
		}
	}()
	return ch.Send(ctx, alert, rule)
}

// severityColor 按严重级别映射展示颜色
func severityColor(severity Severity) string {
	switch severity {
	case SeverityCritical:
		return "#dc2626"
	case SeverityWarning:
		return "#f59e0b"
	default:
		return "#059669"
	}
}
