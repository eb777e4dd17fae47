/*
 * @module service/monitoring/alert_manager
 * @description 告警管理器，负责告警规则管理、逐样本阈值评估、告警生命周期（触发/解决/清理）
 * @architecture 分层架构 - 业务服务层
 * @stateFlow 规则定义 -> 样本评估 -> 告警触发 -> 显式解决 -> 过期清理
 * @rules 每个越限样本产生一条告警，不去重、不冷却；告警只能显式解决
 * @dependencies github.com/google/uuid, code.cloudfoundry.org/clock
 */

package monitoring

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/google/uuid"
)

const (
	alertTTL       = 7 * 24 * time.Hour
	alertKeyPrefix = "alert:"
	ruleKeyPrefix  = "alert_rule:"
	alertIDPrefix  = "alert_"
	defaultSource  = "monitoring-service"
)

// TriggeredAlert 评估产生的告警及其规则快照
type TriggeredAlert struct {
	Alert Alert
	Rule  AlertRule
}

// AlertManager 告警管理器
type AlertManager struct {
	store       MetricStore
	clock       clock.Clock
	serviceName string

	mutex  sync.RWMutex
	rules  []*AlertRule
	alerts []*Alert
}

// NewAlertManager 创建告警管理器实例，并装载默认规则
func NewAlertManager(store MetricStore, clk clock.Clock, serviceName string) *AlertManager {
	if serviceName == "" {
		serviceName = defaultSource
	}
	a := &AlertManager{
		store:       store,
		clock:       clk,
		serviceName: serviceName,
	}
	for _, rule := range DefaultAlertRules() {
		r := rule
		a.rules = append(a.rules, &r)
	}
	return a
}

// DefaultAlertRules 默认告警规则
func DefaultAlertRules() []AlertRule {
	return []AlertRule{
		{
			ID:        "high_error_rate",
			Name:      "High Error Rate",
			Metric:    "error_rate",
			Condition: ConditionGT,
			Threshold: 0.05,
			Duration:  300,
			Severity:  SeverityHigh,
			Channels:  []ChannelKind{ChannelEmail, ChannelSlack},
			Enabled:   true,
		},
		{
			ID:        "slow_response_time",
			Name:      "Slow API Response Time",
			Metric:    "api_response_time",
			Condition: ConditionGT,
			Threshold: 2000,
			Duration:  60,
			Severity:  SeverityMedium,
			Channels:  []ChannelKind{ChannelSlack},
			Enabled:   true,
		},
		{
			ID:        "database_unavailable",
			Name:      "Database Unavailable",
			Metric:    "database_health",
			Condition: ConditionEQ,
			Threshold: 0,
			Duration:  30,
			Severity:  SeverityCritical,
			Channels:  []ChannelKind{ChannelEmail, ChannelSlack, ChannelWebhook},
			Enabled:   true,
		},
		{
			ID:        "high_memory_usage",
			Name:      "High Memory Usage",
			Metric:    "memory_usage",
			Condition: ConditionGT,
			Threshold: 0.85,
			Duration:  300,
			Severity:  SeverityMedium,
			Channels:  []ChannelKind{ChannelSlack},
			Enabled:   true,
		},
		{
			ID:        "low_order_completion",
			Name:      "Low Order Completion Rate",
			Metric:    "order_completion_rate",
			Condition: ConditionLT,
			Threshold: 0.8,
			Duration:  1800,
			Severity:  SeverityHigh,
			Channels:  []ChannelKind{ChannelEmail, ChannelSlack},
			Enabled:   true,
		},
	}
}

// AddAlertRule 添加告警规则，ID 为空时自动生成
func (a *AlertManager) AddAlertRule(rule AlertRule) (AlertRule, error) {
	rule = rule.Clone()
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if rule.Name == "" {
		rule.Name = rule.ID
	}
	if err := validateAlertRule(rule); err != nil {
		return AlertRule{}, err
	}

	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.findRule(rule.ID) >= 0 {
		return AlertRule{}, fmt.Errorf("%w: %s", ErrRuleExists, rule.ID)
	}

	a.rules = append(a.rules, &rule)
	a.store.Set(ruleKeyPrefix+rule.ID, rule.Clone(), 0)

	return rule.Clone(), nil
}

// UpdateAlertRule 部分更新告警规则
func (a *AlertManager) UpdateAlertRule(ruleID string, updates AlertRuleUpdate) (AlertRule, error) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	idx := a.findRule(ruleID)
	if idx < 0 {
		return AlertRule{}, fmt.Errorf("%w: %s", ErrRuleNotFound, ruleID)
	}

	updated := updates.apply(a.rules[idx].Clone())
	if err := validateAlertRule(updated); err != nil {
		return AlertRule{}, err
	}

	a.rules[idx] = &updated
	a.store.Set(ruleKeyPrefix+ruleID, updated.Clone(), 0)

	return updated.Clone(), nil
}

// DeleteAlertRule 删除告警规则
func (a *AlertManager) DeleteAlertRule(ruleID string) error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	idx := a.findRule(ruleID)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrRuleNotFound, ruleID)
	}

	a.rules = slices.Delete(a.rules, idx, idx+1)
	a.store.Delete(ruleKeyPrefix + ruleID)

	return nil
}

// GetAlertRule 获取单条告警规则
func (a *AlertManager) GetAlertRule(ruleID string) (AlertRule, error) {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	idx := a.findRule(ruleID)
	if idx < 0 {
		return AlertRule{}, fmt.Errorf("%w: %s", ErrRuleNotFound, ruleID)
	}
	return a.rules[idx].Clone(), nil
}

// GetAlertRules 获取所有告警规则（按添加顺序）
func (a *AlertManager) GetAlertRules() []AlertRule {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	rules := make([]AlertRule, 0, len(a.rules))
	for _, rule := range a.rules {
		rules = append(rules, rule.Clone())
	}
	return rules
}

// Evaluate 用单个样本评估所有启用且指标名匹配的规则
// 每条越限规则都产生一条新告警，连续越限会产生多条告警
func (a *AlertManager) Evaluate(sample MetricSample) []TriggeredAlert {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	var triggered []TriggeredAlert
	for _, rule := range a.rules {
		if !rule.Enabled || rule.Metric != sample.Name {
			continue
		}
		if !rule.Condition.Compare(sample.Value, rule.Threshold) {
			continue
		}

		alert := a.createAlert(rule, sample)
		a.alerts = append(a.alerts, alert)
		a.store.Set(alertKeyPrefix+alert.ID, *alert, alertTTL)

		triggered = append(triggered, TriggeredAlert{Alert: *alert, Rule: rule.Clone()})
	}

	return triggered
}

// GetActiveAlerts 获取未解决的告警（按触发顺序）
func (a *AlertManager) GetActiveAlerts() []Alert {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	alerts := make([]Alert, 0)
	for _, alert := range a.alerts {
		if !alert.Resolved {
			alerts = append(alerts, *alert)
		}
	}
	return alerts
}

// GetAlert 获取单条告警
func (a *AlertManager) GetAlert(alertID string) (Alert, error) {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	for _, alert := range a.alerts {
		if alert.ID == alertID {
			return *alert, nil
		}
	}
	return Alert{}, fmt.Errorf("%w: %s", ErrAlertNotFound, alertID)
}

// ResolveAlert 解决告警；重复解决不会覆盖首次的解决时间
func (a *AlertManager) ResolveAlert(alertID string) (Alert, error) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	for _, alert := range a.alerts {
		if alert.ID != alertID {
			continue
		}
		if !alert.Resolved {
			now := a.clock.Now()
			alert.Resolved = true
			alert.ResolvedAt = &now
			a.store.Set(alertKeyPrefix+alert.ID, *alert, alertTTL)
		}
		return *alert, nil
	}

	return Alert{}, fmt.Errorf("%w: %s", ErrAlertNotFound, alertID)
}

// CleanupAlerts 清理触发时间早于保留期的已解决告警，返回清理数量
func (a *AlertManager) CleanupAlerts(retention time.Duration) int {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	cutoff := a.clock.Now().Add(-retention)
	kept := a.alerts[:0]
	removed := 0
	for _, alert := range a.alerts {
		if alert.Resolved && alert.Timestamp.Before(cutoff) {
			a.store.Delete(alertKeyPrefix + alert.ID)
			removed++
			continue
		}
		kept = append(kept, alert)
	}
	clear(a.alerts[len(kept):])
	a.alerts = kept

	return removed
}

// ActiveAlertCount 未解决告警数量
func (a *AlertManager) ActiveAlertCount() int {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	n := 0
	for _, alert := range a.alerts {
		if !alert.Resolved {
			n++
		}
	}
	return n
}

func (a *AlertManager) findRule(ruleID string) int {
	return slices.IndexFunc(a.rules, func(r *AlertRule) bool { return r.ID == ruleID })
}

// 创建告警
func (a *AlertManager) createAlert(rule *AlertRule, sample MetricSample) *Alert {
	service := a.serviceName
	if s := sample.Tags["service"]; s != "" {
		service = s
	}

	var metadata map[string]string
	if len(sample.Tags) > 0 {
		metadata = make(map[string]string, len(sample.Tags))
		for k, v := range sample.Tags {
			metadata[k] = v
		}
	}

	return &Alert{
		ID:        generateAlertID(),
		RuleID:    rule.ID,
		Title:     rule.Name,
		Metric:    sample.Name,
		Value:     sample.Value,
		Threshold: rule.Threshold,
		Severity:  rule.Severity,
		Message:   fmt.Sprintf("%s: %s = %v (threshold: %v)", rule.Name, sample.Name, sample.Value, rule.Threshold),
		Timestamp: a.clock.Now(),
		Resolved:  false,
		Service:   service,
		Metadata:  metadata,
	}
}

// 验证告警规则
func validateAlertRule(rule AlertRule) error {
	if rule.Metric == "" {
		return fmt.Errorf("%w: 指标名称不能为空", ErrInvalidRule)
	}
	if !rule.Condition.Valid() {
		return fmt.Errorf("%w: 无效的条件操作符: %s", ErrInvalidRule, rule.Condition)
	}
	if !rule.Severity.Valid() {
		return fmt.Errorf("%w: 无效的严重性级别: %s", ErrInvalidRule, rule.Severity)
	}
	for _, ch := range rule.Channels {
		if !ch.Valid() {
			return fmt.Errorf("%w: 无效的通知渠道: %s", ErrInvalidRule, ch)
		}
	}
	if rule.Duration < 0 {
		return fmt.Errorf("%w: 持续时间不能为负数", ErrInvalidRule)
	}
	return nil
}

// 生成告警ID
func generateAlertID() string {
	return alertIDPrefix + uuid.NewString()
}
