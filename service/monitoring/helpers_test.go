package monitoring

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/stretchr/testify/require"
)

var testEpoch = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// recordingChannel 记录收到的告警，可配置返回错误或 panic
type recordingChannel struct {
	kind  ChannelKind
	err   error
	panic bool

	mu     sync.Mutex
	alerts []Alert
}

func newRecordingChannel(kind ChannelKind) *recordingChannel {
	return &recordingChannel{kind: kind}
}

func (c *recordingChannel) Kind() ChannelKind { return c.kind }

func (c *recordingChannel) Send(ctx context.Context, alert *Alert, rule *AlertRule) error {
	c.mu.Lock()
	c.alerts = append(c.alerts, *alert)
	c.mu.Unlock()
	if c.panic {
		panic("channel exploded")
	}
	return c.err
}

func (c *recordingChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.alerts)
}

// testChannels 三种渠道的记录器
type testChannels struct {
	email   *recordingChannel
	slack   *recordingChannel
	webhook *recordingChannel
}

func newTestChannels() testChannels {
	return testChannels{
		email:   newRecordingChannel(ChannelEmail),
		slack:   newRecordingChannel(ChannelSlack),
		webhook: newRecordingChannel(ChannelWebhook),
	}
}

func (t testChannels) all() []Channel {
	return []Channel{t.email, t.slack, t.webhook}
}

func newTestMonitor(t *testing.T, channels []Channel, probes ...Probe) (*MonitorService, *fakeclock.FakeClock) {
	t.Helper()
	clk := fakeclock.NewFakeClock(testEpoch)
	m := NewMonitorService(Options{
		Store:        NewMemoryStore(0),
		Clock:        clk,
		Channels:     channels,
		Probes:       probes,
		ProbeTimeout: time.Second,
		ServiceName:  "test-service",
		Version:      "test",
	})
	require.NotNil(t, m)
	return m, clk
}

func staticProbe(name string, ok bool) Probe {
	return NewProbe(name, func(ctx context.Context) (bool, error) { return ok, nil })
}

func failingProbe(name string) Probe {
	return NewProbe(name, func(ctx context.Context) (bool, error) {
		return false, errors.New("connection refused")
	})
}

func floatPtr(v float64) *float64 { return &v }
