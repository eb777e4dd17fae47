/*
 * @module service/monitoring/webhook_channel
 * @description Webhook 告警渠道，将告警信封并发投递到多个 URL
 * @architecture 分层架构 - 基础设施层
 * @stateFlow 告警 -> 信封序列化 -> 每个 URL 独立超时投递 -> 汇总错误
 * @rules 每个 URL 单独超时，互不阻塞；所有投递完成后返回合并的错误
 * @dependencies golang.org/x/sync/errgroup
 */

package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	defaultWebhookTimeout = 10 * time.Second
	webhookUserAgent      = "Monitoring-Service/1.0"
)

type webhookRule struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Severity    Severity `json:"severity"`
	Enabled     bool     `json:"enabled"`
}

// WebhookPayload Webhook 投递的信封
type WebhookPayload struct {
	Alert  Alert       `json:"alert"`
	Rule   webhookRule `json:"rule"`
	Source string      `json:"source"`
}

// WebhookChannel Webhook 告警渠道
type WebhookChannel struct {
	defaultURL string
	timeout    time.Duration
	client     HTTPDoer
}

// NewWebhookChannel 创建 Webhook 渠道，timeout <= 0 时使用 10s
func NewWebhookChannel(defaultURL string, timeout time.Duration) *WebhookChannel {
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	return &WebhookChannel{
		defaultURL: defaultURL,
		timeout:    timeout,
		// 超时由每次投递的 context 控制
		client: &http.Client{},
	}
}

// Kind 渠道类型
func (w *WebhookChannel) Kind() ChannelKind {
	return ChannelWebhook
}

// Send 并发投递到规则配置的所有 URL
func (w *WebhookChannel) Send(ctx context.Context, alert *Alert, rule *AlertRule) error {
	urls := w.targets(rule)
	if len(urls) == 0 {
		return fmt.Errorf("%w: webhook", ErrChannelNotConfigured)
	}

	payload := WebhookPayload{Alert: *alert, Source: defaultSource}
	if rule != nil {
		payload.Rule = webhookRule{
			Name:        rule.Name,
			Description: rule.Description,
			Severity:    rule.Severity,
			Enabled:     rule.Enabled,
		}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化告警数据失败: %w", err)
	}

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for _, url := range urls {
		g.Go(func() error {
			if err := w.deliver(ctx, url, body); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", url, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}

func (w *WebhookChannel) targets(rule *AlertRule) []string {
	if rule != nil && len(rule.WebhookURLs) > 0 {
		return rule.WebhookURLs
	}
	if w.defaultURL == "" {
		return nil
	}
	return []string{w.defaultURL}
}

func (w *WebhookChannel) deliver(ctx context.Context, url string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("创建HTTP请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", webhookUserAgent)

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("发送Webhook通知失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("Webhook通知响应错误: %d", resp.StatusCode)
	}
	return nil
}
