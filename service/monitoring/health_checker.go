/*
 * @module service/monitoring/health_checker
 * @description 健康检查器，并发执行依赖探针并将结果归约为 healthy/degraded/unhealthy 三态
 * @architecture 分层架构 - 业务服务层
 * @stateFlow 探针注册 -> 并发检测(单独超时) -> 结果收集 -> 状态归约
 * @rules 探针出错、超时或 panic 均视为不健康；全部通过为 healthy，至少 80% 通过为 degraded
 * @dependencies golang.org/x/sync/errgroup, log/slog
 */

package monitoring

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	defaultProbeTimeout = 5 * time.Second
	degradedRatio       = 0.8
)

// Probe 依赖探针
type Probe interface {
	Name() string
	Check(ctx context.Context) (bool, error)
}

// ProbeFunc 探针函数
type ProbeFunc func(ctx context.Context) (bool, error)

type funcProbe struct {
	name string
	fn   ProbeFunc
}

// NewProbe 用函数构造探针
func NewProbe(name string, fn ProbeFunc) Probe {
	return &funcProbe{name: name, fn: fn}
}

func (p *funcProbe) Name() string { return p.name }

func (p *funcProbe) Check(ctx context.Context) (bool, error) {
	return p.fn(ctx)
}

// QuorumProbe 由多个子探针组成，至少 Quorum 个通过即视为健康
type QuorumProbe struct {
	name   string
	quorum int
	probes []Probe
}

// NewQuorumProbe 创建法定数量探针
func NewQuorumProbe(name string, quorum int, probes ...Probe) *QuorumProbe {
	return &QuorumProbe{name: name, quorum: quorum, probes: probes}
}

// Name 探针名称
func (q *QuorumProbe) Name() string { return q.name }

// Check 并发执行所有子探针并计数
func (q *QuorumProbe) Check(ctx context.Context) (bool, error) {
	results := runProbes(ctx, q.probes, 0)
	passed := 0
	for _, ok := range results {
		if ok {
			passed++
		}
	}
	return passed >= q.quorum, nil
}

// ReduceStatus 将通过数归约为健康状态
func ReduceStatus(healthy, total int) HealthState {
	if healthy == total {
		return HealthStateHealthy
	}
	if float64(healthy) >= degradedRatio*float64(total) {
		return HealthStateDegraded
	}
	return HealthStateUnhealthy
}

// HealthChecker 健康检查器
type HealthChecker struct {
	probes  []Probe
	timeout time.Duration
	metrics *MetricsCollector
}

// NewHealthChecker 创建健康检查器，timeout <= 0 时使用 5s
func NewHealthChecker(timeout time.Duration, metrics *MetricsCollector, probes ...Probe) *HealthChecker {
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	return &HealthChecker{
		probes:  probes,
		timeout: timeout,
		metrics: metrics,
	}
}

// CheckAll 执行所有探针，返回每个探针的结果与归约后的状态
func (h *HealthChecker) CheckAll(ctx context.Context) (map[string]bool, HealthState) {
	checks := runProbes(ctx, h.probes, h.timeout)

	healthy := 0
	for name, ok := range checks {
		h.metrics.probeResult(name, ok)
		if ok {
			healthy++
		}
	}

	state := ReduceStatus(healthy, len(checks))
	h.metrics.healthStatus(state)
	return checks, state
}

// runProbes 并发执行探针；timeout > 0 时每个探针单独限时
func runProbes(ctx context.Context, probes []Probe, timeout time.Duration) map[string]bool {
	var (
		g       errgroup.Group
		mu      sync.Mutex
		results = make(map[string]bool, len(probes))
	)

	for _, probe := range probes {
		g.Go(func() error {
			ok := checkProbe(ctx, probe, timeout)
			mu.Lock()
			results[probe.Name()] = ok
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func checkProbe(ctx context.Context, probe Probe, timeout time.Duration) bool {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type result struct {
		ok  bool
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: &panicError{value: r}}
			}
		}()
		passed, err := probe.Check(ctx)
		done <- result{ok: passed, err: err}
	}()

	select {
	case res := <-done:
		if err := ctx.Err(); err != nil {
			slog.Warn("健康探针超时", "probe", probe.Name(), "error", err)
			return false
		}
		if res.err != nil {
			slog.Warn("健康探针失败", "probe", probe.Name(), "error", res.err)
			return false
		}
		return res.ok
	case <-ctx.Done():
		slog.Warn("健康探针超时", "probe", probe.Name(), "error", ctx.Err())
		return false
	}
}
