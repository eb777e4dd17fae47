/**
 * @module SchedulerService
 * @description 监控任务调度器，按 Cron 表达式周期执行健康检查、业务指标采集、告警清理与系统维护
 * @architecture 基于 robfig/cron 的调度器模式，可选 Redis 分布式锁防止多副本重复执行
 * @stateFlow 注册任务 -> 启动调度 -> 定时触发 -> (加锁) -> 限时执行 -> 释放锁
 * @rules 任务仍在运行时跳过本次触发；单个任务出错或 panic 不影响调度器
 * @dependencies github.com/robfig/cron/v3, service/distributed_lock
 * @refs service/monitoring/jobs.go
 */

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"monitoring-service/service/distributed_lock"
	"monitoring-service/service/monitoring"
)

const (
	defaultJobTimeout = 2 * time.Minute
	lockTTLMargin     = 30 * time.Second
)

// Job 周期任务
type Job struct {
	Name    string
	Spec    string
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// JobStatus 任务最近一次执行情况
type JobStatus struct {
	Name      string    `json:"name"`
	Spec      string    `json:"spec"`
	LastRun   time.Time `json:"last_run,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	NextRun   time.Time `json:"next_run,omitempty"`
	Runs      int       `json:"runs"`
}

// SchedulerService 调度器服务
type SchedulerService struct {
	cron   *cron.Cron
	locker *distributed_lock.LockExecutor
	ctx    context.Context
	cancel context.CancelFunc

	mutex   sync.RWMutex
	jobs    map[string]Job
	entries map[string]cron.EntryID
	status  map[string]*JobStatus
}

// NewSchedulerService 创建调度器服务，locker 为 nil 时不加分布式锁
func NewSchedulerService(locker *distributed_lock.LockExecutor) *SchedulerService {
	ctx, cancel := context.WithCancel(context.Background())
	logger := slogCronLogger{}

	c := cron.New(
		cron.WithSeconds(),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	return &SchedulerService{
		cron:    c,
		locker:  locker,
		ctx:     ctx,
		cancel:  cancel,
		jobs:    make(map[string]Job),
		entries: make(map[string]cron.EntryID),
		status:  make(map[string]*JobStatus),
	}
}

// AddJob 注册周期任务
func (s *SchedulerService) AddJob(job Job) error {
	if job.Name == "" || job.Run == nil {
		return errors.New("任务名称和执行函数不能为空")
	}
	if job.Timeout <= 0 {
		job.Timeout = defaultJobTimeout
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.jobs[job.Name]; exists {
		return fmt.Errorf("任务已存在: %s", job.Name)
	}

	id, err := s.cron.AddFunc(job.Spec, func() {
		_ = s.RunJob(job.Name)
	})
	if err != nil {
		return fmt.Errorf("添加Cron任务失败 [%s]: %w", job.Name, err)
	}

	s.jobs[job.Name] = job
	s.entries[job.Name] = id
	s.status[job.Name] = &JobStatus{Name: job.Name, Spec: job.Spec}

	slog.Info("添加周期任务", "job", job.Name, "spec", job.Spec, "timeout", job.Timeout)
	return nil
}

// Start 启动调度器
func (s *SchedulerService) Start() {
	slog.Info("启动监控任务调度器")
	s.cron.Start()
}

// Stop 停止调度器并等待运行中的任务结束
func (s *SchedulerService) Stop() {
	slog.Info("停止监控任务调度器")
	s.cancel()
	<-s.cron.Stop().Done()
	slog.Info("监控任务调度器已停止")
}

// RunJob 立即执行一次任务（带超时、加锁与 panic 恢复）
func (s *SchedulerService) RunJob(name string) (err error) {
	s.mutex.RLock()
	job, ok := s.jobs[name]
	s.mutex.RUnlock()
	if !ok {
		return fmt.Errorf("任务不存在: %s", name)
	}

	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("任务 panic: %v", r)
		}
		s.recordRun(name, started, err)
		if err != nil {
			slog.Error("周期任务执行失败", "job", name, "duration", time.Since(started), "error", err)
			return
		}
		slog.Debug("周期任务执行完成", "job", name, "duration", time.Since(started))
	}()

	ctx, cancel := context.WithTimeout(s.ctx, job.Timeout)
	defer cancel()

	run := func() error { return job.Run(ctx) }
	if s.locker == nil {
		return run()
	}
	return s.locker.ExecuteWithLockAndRefresh(ctx, name, job.Timeout+lockTTLMargin, job.Timeout/2+time.Second, run)
}

// Status 返回所有任务的执行情况
func (s *SchedulerService) Status() []JobStatus {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	result := make([]JobStatus, 0, len(s.status))
	for name, st := range s.status {
		copied := *st
		if id, ok := s.entries[name]; ok {
			copied.NextRun = s.cron.Entry(id).Next
		}
		result = append(result, copied)
	}
	return result
}

func (s *SchedulerService) recordRun(name string, started time.Time, err error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	st, ok := s.status[name]
	if !ok {
		return
	}
	st.LastRun = started
	st.Runs++
	st.LastError = ""
	if err != nil {
		st.LastError = err.Error()
	}
}

// MonitoringJobs 监控服务的默认周期任务
func MonitoringJobs(monitor *monitoring.MonitorService, source monitoring.BusinessMetricsSource) []Job {
	return []Job{
		{
			Name:    "health_check",
			Spec:    "0 */5 * * * *",
			Timeout: time.Minute,
			Run: func(ctx context.Context) error {
				return monitoring.RunHealthCheck(ctx, monitor)
			},
		},
		{
			Name:    "business_metrics",
			Spec:    "0 */15 * * * *",
			Timeout: 2 * time.Minute,
			Run: func(ctx context.Context) error {
				return monitoring.RunBusinessMetrics(ctx, monitor, source)
			},
		},
		{
			Name:    "alert_cleanup",
			Spec:    "0 0 * * * *",
			Timeout: time.Minute,
			Run: func(ctx context.Context) error {
				return monitoring.RunAlertCleanup(ctx, monitor)
			},
		},
		{
			Name:    "system_maintenance",
			Spec:    "0 0 3 * * *",
			Timeout: 5 * time.Minute,
			Run: func(ctx context.Context) error {
				return monitoring.RunMaintenance(ctx, monitor)
			},
		},
	}
}

// slogCronLogger 把 cron 内部日志接到 slog
type slogCronLogger struct{}

func (slogCronLogger) Info(msg string, keysAndValues ...interface{}) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (slogCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	slog.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
