package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func sampleAlert() Alert {
	return Alert{
		ID:        "alert_1",
		RuleID:    "slow_response_time",
		Title:     "Slow API Response Time",
		Metric:    "api_response_time",
		Value:     2500,
		Threshold: 2000,
		Severity:  SeverityCritical,
		Message:   "Slow API Response Time: api_response_time = 2500 (threshold: 2000)",
		Timestamp: testEpoch,
		Service:   "api",
		Metadata:  map[string]string{"endpoint": "/orders"},
	}
}

func TestDispatcher_SettlesAllChannels(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetricsCollector(reg)

	email := newRecordingChannel(ChannelEmail)
	email.err = errors.New("smtp down")
	slack := newRecordingChannel(ChannelSlack)
	slack.panic = true
	webhook := newRecordingChannel(ChannelWebhook)

	d := NewDispatcher(metrics, email, slack, webhook)
	rule := AlertRule{ID: "r", Channels: []ChannelKind{ChannelEmail, ChannelSlack, ChannelWebhook}}

	assert.NotPanics(t, func() {
		d.Dispatch(context.Background(), sampleAlert(), rule)
	})

	assert.Equal(t, 1, email.count())
	assert.Equal(t, 1, slack.count())
	assert.Equal(t, 1, webhook.count(), "其他渠道失败不影响 webhook")

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.notifications.WithLabelValues("email", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.notifications.WithLabelValues("slack", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.notifications.WithLabelValues("webhook", "success")))
}

func TestDispatcher_OnlyRuleChannels(t *testing.T) {
	ch := newTestChannels()
	d := NewDispatcher(nil, ch.all()...)

	d.Dispatch(context.Background(), sampleAlert(), AlertRule{Channels: []ChannelKind{ChannelSlack, ChannelSlack}})

	assert.Equal(t, 0, ch.email.count())
	assert.Equal(t, 1, ch.slack.count(), "重复的渠道只发送一次")
	assert.Equal(t, 0, ch.webhook.count())
}

func TestDispatcher_UnregisteredChannelSkipped(t *testing.T) {
	slack := newRecordingChannel(ChannelSlack)
	d := NewDispatcher(nil, slack)

	d.Dispatch(context.Background(), sampleAlert(), AlertRule{Channels: []ChannelKind{ChannelEmail, ChannelSlack}})
	assert.Equal(t, 1, slack.count())
}

func TestSeverityColor(t *testing.T) {
	assert.Equal(t, "#dc2626", severityColor(SeverityCritical))
	assert.Equal(t, "#f59e0b", severityColor(SeverityWarning))
	assert.Equal(t, "#059669", severityColor(SeverityHigh))
	assert.Equal(t, "#059669", severityColor(SeverityLow))
}

func TestSlackChannel_Send(t *testing.T) {
	var got slackMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	alert := sampleAlert()
	err := NewSlackChannel(server.URL, time.Second).Send(context.Background(), &alert, &AlertRule{})
	require.NoError(t, err)

	assert.Contains(t, got.Text, alert.Title)
	require.Len(t, got.Attachments, 1)
	att := got.Attachments[0]
	assert.Equal(t, "#dc2626", att.Color)
	assert.Equal(t, testEpoch.Unix(), att.Ts)
	require.Len(t, att.Fields, 6)
	assert.Equal(t, "Service", att.Fields[0].Title)
	assert.Equal(t, "api", att.Fields[0].Value)
	assert.Equal(t, "2500", att.Fields[2].Value)
}

func TestSlackChannel_Errors(t *testing.T) {
	alert := sampleAlert()

	err := NewSlackChannel("", time.Second).Send(context.Background(), &alert, &AlertRule{})
	assert.ErrorIs(t, err, ErrChannelNotConfigured)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()
	err = NewSlackChannel(server.URL, time.Second).Send(context.Background(), &alert, &AlertRule{})
	assert.Error(t, err)
}

func TestWebhookChannel_FanOutWithSlowEndpoint(t *testing.T) {
	var delivered atomic.Int32
	fast := func() *httptest.Server {
		return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, webhookUserAgent, r.Header.Get("User-Agent"))
			var payload WebhookPayload
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			assert.Equal(t, "alert_1", payload.Alert.ID)
			assert.Equal(t, "Slow API Response Time", payload.Rule.Name)
			assert.Equal(t, defaultSource, payload.Source)
			delivered.Add(1)
			w.WriteHeader(http.StatusOK)
		}))
	}
	a, b := fast(), fast()
	defer a.Close()
	defer b.Close()

	release := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer slow.Close()
	defer close(release)

	channel := NewWebhookChannel("", 200*time.Millisecond)
	rule := &AlertRule{
		Name:        "Slow API Response Time",
		Severity:    SeverityMedium,
		WebhookURLs: []string{a.URL, slow.URL, b.URL},
	}
	alert := sampleAlert()

	started := time.Now()
	err := channel.Send(context.Background(), &alert, rule)
	elapsed := time.Since(started)

	require.Error(t, err, "超时的 URL 应返回错误")
	assert.Contains(t, err.Error(), slow.URL)
	assert.NotContains(t, err.Error(), a.URL)
	assert.Equal(t, int32(2), delivered.Load(), "其他两个 URL 正常投递")
	assert.Less(t, elapsed, 2*time.Second)
}

func TestWebhookChannel_DefaultURLAndNotConfigured(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	alert := sampleAlert()
	require.NoError(t, NewWebhookChannel(server.URL, time.Second).Send(context.Background(), &alert, &AlertRule{}))
	assert.Equal(t, int32(1), hits.Load())

	err := NewWebhookChannel("", time.Second).Send(context.Background(), &alert, &AlertRule{})
	assert.ErrorIs(t, err, ErrChannelNotConfigured)
}

func TestEmailChannel_Resend(t *testing.T) {
	var (
		mu  sync.Mutex
		req resendRequest
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/emails", r.URL.Path)
		assert.Equal(t, "Bearer re_test", r.Header.Get("Authorization"))
		mu.Lock()
		defer mu.Unlock()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	channel := NewEmailChannel(NewResendTransport(server.URL, "re_test", time.Second), "alerts@example.com", "admin@example.com")
	alert := sampleAlert()

	require.NoError(t, channel.Send(context.Background(), &alert, &AlertRule{}))
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"admin@example.com"}, req.To)
	assert.Equal(t, "alerts@example.com", req.From)
	assert.Equal(t, "[CRITICAL] Slow API Response Time", req.Subject)
	assert.Contains(t, req.HTML, "api_response_time")
	assert.Contains(t, req.HTML, "/orders", "元数据应渲染到邮件正文")
}

func TestEmailChannel_RuleRecipientsAndFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), "oncall@example.com")
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	channel := NewEmailChannel(NewResendTransport(server.URL, "re_test", time.Second), "alerts@example.com", "admin@example.com")
	alert := sampleAlert()
	err := channel.Send(context.Background(), &alert, &AlertRule{EmailRecipients: []string{"oncall@example.com"}})
	assert.Error(t, err, "非 2xx 响应视为失败")

	unconfigured := NewEmailChannel(NewResendTransport(server.URL, "", time.Second), "a@example.com", "b@example.com")
	assert.ErrorIs(t, unconfigured.Send(context.Background(), &alert, &AlertRule{}), ErrChannelNotConfigured)
}

type mockSES struct {
	mock.Mock
}

func (m *mockSES) SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*sesv2.SendEmailOutput)
	return out, args.Error(1)
}

func TestEmailChannel_SES(t *testing.T) {
	ses := &mockSES{}
	ses.On("SendEmail", mock.Anything, mock.MatchedBy(func(in *sesv2.SendEmailInput) bool {
		return *in.FromEmailAddress == "alerts@example.com" &&
			len(in.Destination.ToAddresses) == 1 &&
			*in.Content.Simple.Subject.Data == "[CRITICAL] Slow API Response Time"
	})).Return(&sesv2.SendEmailOutput{}, nil).Once()

	channel := NewEmailChannel(NewSESTransport(ses), "alerts@example.com", "admin@example.com")
	alert := sampleAlert()
	require.NoError(t, channel.Send(context.Background(), &alert, &AlertRule{}))
	ses.AssertExpectations(t)
}
