package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Fields []slackField `json:"fields"`
	Footer string       `json:"footer"`
	Ts     int64        `json:"ts"`
}

type slackMessage struct {
	Text        string            `json:"text"`
	Attachments []slackAttachment `json:"attachments"`
}

// SlackChannel Slack incoming webhook 告警渠道
type SlackChannel struct {
	webhookURL string
	client     HTTPDoer
}

// NewSlackChannel 创建 Slack 渠道
func NewSlackChannel(webhookURL string, timeout time.Duration) *SlackChannel {
	return &SlackChannel{
		webhookURL: webhookURL,
		client:     newHTTPClient(timeout),
	}
}

// Kind 渠道类型
func (s *SlackChannel) Kind() ChannelKind {
	return ChannelSlack
}

// Send 推送告警到 Slack
func (s *SlackChannel) Send(ctx context.Context, alert *Alert, rule *AlertRule) error {
	if s.webhookURL == "" {
		return fmt.Errorf("%w: slack", ErrChannelNotConfigured)
	}

	payload, err := json.Marshal(buildSlackMessage(alert))
	if err != nil {
		return fmt.Errorf("序列化Slack消息失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("创建HTTP请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("发送Slack通知失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("Slack通知响应错误: %d", resp.StatusCode)
	}
	return nil
}

func buildSlackMessage(alert *Alert) slackMessage {
	return slackMessage{
		Text: fmt.Sprintf("🚨 *%s*", alert.Title),
		Attachments: []slackAttachment{{
			Color: severityColor(alert.Severity),
			Fields: []slackField{
				{Title: "Service", Value: alert.Service, Short: true},
				{Title: "Metric", Value: alert.Metric, Short: true},
				{Title: "Value", Value: strconv.FormatFloat(alert.Value, 'f', -1, 64), Short: true},
				{Title: "Threshold", Value: strconv.FormatFloat(alert.Threshold, 'f', -1, 64), Short: true},
				{Title: "Message", Value: alert.Message, Short: false},
				{Title: "Timestamp", Value: alert.Timestamp.Format(time.RFC3339), Short: true},
			},
			Footer: notificationSource,
			Ts:     alert.Timestamp.Unix(),
		}},
	}
}
