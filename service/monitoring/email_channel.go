/*
 * @module service/monitoring/email_channel
 * @description 邮件告警渠道，渲染 HTML 告警邮件并通过 Resend HTTP API 或 AWS SES v2 发送
 * @architecture 分层架构 - 基础设施层
 * @stateFlow 告警 -> 收件人解析 -> 模板渲染 -> 传输层发送
 * @rules 收件人优先取规则配置，否则使用管理员邮箱；未配置传输层时返回 ErrChannelNotConfigured
 * @dependencies github.com/aws/aws-sdk-go-v2/service/sesv2, html/template
 */

package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sesv2types "github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// EmailMessage 待发送的邮件
type EmailMessage struct {
	From    string
	To      []string
	Subject string
	HTML    string
}

// EmailTransport 邮件传输层
type EmailTransport interface {
	SendEmail(ctx context.Context, msg EmailMessage) error
}

// ResendTransport 基于 Resend HTTP API 的邮件传输
type ResendTransport struct {
	APIURL string
	APIKey string
	Client HTTPDoer
}

// NewResendTransport 创建 Resend 传输，apiKey 为空返回 nil
func NewResendTransport(apiURL, apiKey string, timeout time.Duration) *ResendTransport {
	if apiKey == "" {
		return nil
	}
	return &ResendTransport{
		APIURL: strings.TrimRight(apiURL, "/"),
		APIKey: apiKey,
		Client: newHTTPClient(timeout),
	}
}

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

// SendEmail 调用 POST {api}/emails
func (t *ResendTransport) SendEmail(ctx context.Context, msg EmailMessage) error {
	payload, err := json.Marshal(resendRequest{
		From:    msg.From,
		To:      msg.To,
		Subject: msg.Subject,
		HTML:    msg.HTML,
	})
	if err != nil {
		return fmt.Errorf("序列化邮件请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.APIURL+"/emails", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("创建HTTP请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.APIKey)

	resp, err := t.Client.Do(req)
	if err != nil {
		return fmt.Errorf("发送邮件请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("邮件服务响应错误: %d %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// SESAPI SES v2 客户端中用到的方法
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESTransport 基于 AWS SES v2 的邮件传输
type SESTransport struct {
	client SESAPI
}

// NewSESTransport 创建 SES 传输
func NewSESTransport(client SESAPI) *SESTransport {
	return &SESTransport{client: client}
}

// SendEmail 通过 SES 发送 HTML 邮件
func (t *SESTransport) SendEmail(ctx context.Context, msg EmailMessage) error {
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(msg.From),
		Destination: &sesv2types.Destination{
			ToAddresses: msg.To,
		},
		Content: &sesv2types.EmailContent{
			Simple: &sesv2types.Message{
				Subject: &sesv2types.Content{
					Data: aws.String(msg.Subject),
				},
				Body: &sesv2types.Body{
					Html: &sesv2types.Content{
						Data: aws.String(msg.HTML),
					},
				},
			},
		},
	}

	if _, err := t.client.SendEmail(ctx, input); err != nil {
		return fmt.Errorf("SES 发送邮件失败: %w", err)
	}
	return nil
}

var emailTemplate = template.Must(template.New("alert").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif;">
  <div style="border-left: 4px solid {{.Color}}; padding: 12px 16px;">
    <h2 style="margin: 0 0 8px 0;">{{.Alert.Title}}</h2>
    <p><strong>Severity:</strong> {{.Severity}}</p>
    <p><strong>Message:</strong> {{.Alert.Message}}</p>
    <p><strong>Time:</strong> {{.Time}}</p>
    <p><strong>Service:</strong> {{.Alert.Service}}</p>
    <p><strong>Metric:</strong> {{.Alert.Metric}}</p>
    <p><strong>Value:</strong> {{.Alert.Value}}</p>
    <p><strong>Threshold:</strong> {{.Alert.Threshold}}</p>
    {{- if .Metadata}}
    <pre style="background: #f3f4f6; padding: 8px;">{{.Metadata}}</pre>
    {{- end}}
  </div>
</body>
</html>`))

type emailView struct {
	Alert    *Alert
	Severity string
	Color    string
	Time     string
	Metadata string
}

// EmailChannel 邮件告警渠道
type EmailChannel struct {
	transport  EmailTransport
	from       string
	adminEmail string
}

// NewEmailChannel 创建邮件渠道；transport 为 nil 时发送返回 ErrChannelNotConfigured
func NewEmailChannel(transport EmailTransport, from, adminEmail string) *EmailChannel {
	return &EmailChannel{
		transport:  transport,
		from:       from,
		adminEmail: adminEmail,
	}
}

// Kind 渠道类型
func (e *EmailChannel) Kind() ChannelKind {
	return ChannelEmail
}

// Send 发送告警邮件
func (e *EmailChannel) Send(ctx context.Context, alert *Alert, rule *AlertRule) error {
	if e.transport == nil || isNilTransport(e.transport) {
		return fmt.Errorf("%w: email", ErrChannelNotConfigured)
	}

	recipients := e.recipients(rule)
	if len(recipients) == 0 {
		return fmt.Errorf("%w: email 无收件人", ErrChannelNotConfigured)
	}

	html, err := renderAlertEmail(alert)
	if err != nil {
		return err
	}

	return e.transport.SendEmail(ctx, EmailMessage{
		From:    e.from,
		To:      recipients,
		Subject: fmt.Sprintf("[%s] %s", strings.ToUpper(string(alert.Severity)), alert.Title),
		HTML:    html,
	})
}

func (e *EmailChannel) recipients(rule *AlertRule) []string {
	if rule != nil && len(rule.EmailRecipients) > 0 {
		return rule.EmailRecipients
	}
	if e.adminEmail == "" {
		return nil
	}
	return []string{e.adminEmail}
}

// isNilTransport 识别装在接口里的 nil *ResendTransport
func isNilTransport(t EmailTransport) bool {
	rt, ok := t.(*ResendTransport)
	return ok && rt == nil
}

func renderAlertEmail(alert *Alert) (string, error) {
	view := emailView{
		Alert:    alert,
		Severity: strings.ToUpper(string(alert.Severity)),
		Color:    severityColor(alert.Severity),
		Time:     alert.Timestamp.Format(time.RFC3339),
	}
	if len(alert.Metadata) > 0 {
		data, err := json.MarshalIndent(alert.Metadata, "", "  ")
		if err != nil {
			return "", fmt.Errorf("序列化告警元数据失败: %w", err)
		}
		view.Metadata = string(data)
	}

	var buf bytes.Buffer
	if err := emailTemplate.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("渲染告警邮件失败: %w", err)
	}
	return buf.String(), nil
}
