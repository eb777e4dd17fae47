/*
 * @module api/controllers/alert_controller
 * @description 告警控制器，提供告警查询与解决、告警规则的增删改查与测试
 * @architecture MVC架构 - 控制器层
 * @stateFlow 请求接收 -> 参数解析 -> 告警管理器操作 -> 响应返回
 * @rules 规则部分更新只修改请求中出现的字段；解决告警幂等
 * @dependencies github.com/go-chi/chi/v5, github.com/go-chi/render, github.com/spf13/cast
 * @refs service/monitoring/alert_manager.go
 */

package controllers

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/spf13/cast"

	"monitoring-service/service/monitoring"
)

// AlertController 告警控制器
type AlertController struct {
	monitor *monitoring.MonitorService
}

// NewAlertController 创建告警控制器实例
func NewAlertController(monitor *monitoring.MonitorService) *AlertController {
	return &AlertController{monitor: monitor}
}

// TestRuleRequest 规则测试请求，rule_id 优先，否则使用内联规则
type TestRuleRequest struct {
	RuleID string                `json:"rule_id,omitempty"`
	Rule   *monitoring.AlertRule `json:"rule,omitempty"`
}

// GetActiveAlerts 获取未解决的告警
func (c *AlertController) GetActiveAlerts(w http.ResponseWriter, r *http.Request) {
	renderSuccess(w, r, http.StatusOK, "获取告警列表成功", c.monitor.GetActiveAlerts())
}

// GetAlert 获取告警详情
func (c *AlertController) GetAlert(w http.ResponseWriter, r *http.Request) {
	alert, err := c.monitor.GetAlert(chi.URLParam(r, "id"))
	if err != nil {
		renderServiceError(w, r, err, "获取告警失败")
		return
	}
	renderSuccess(w, r, http.StatusOK, "获取告警成功", alert)
}

// ResolveAlert 解决告警
func (c *AlertController) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	alert, err := c.monitor.ResolveAlert(chi.URLParam(r, "id"))
	if err != nil {
		renderServiceError(w, r, err, "解决告警失败")
		return
	}
	renderSuccess(w, r, http.StatusOK, "告警已解决", alert)
}

// GetAlertRules 获取告警规则列表
func (c *AlertController) GetAlertRules(w http.ResponseWriter, r *http.Request) {
	renderSuccess(w, r, http.StatusOK, "获取告警规则成功", c.monitor.GetAlertRules())
}

// GetAlertRule 获取单条告警规则
func (c *AlertController) GetAlertRule(w http.ResponseWriter, r *http.Request) {
	rule, err := c.monitor.GetAlertRule(chi.URLParam(r, "id"))
	if err != nil {
		renderServiceError(w, r, err, "获取告警规则失败")
		return
	}
	renderSuccess(w, r, http.StatusOK, "获取告警规则成功", rule)
}

// CreateAlertRule 创建告警规则
func (c *AlertController) CreateAlertRule(w http.ResponseWriter, r *http.Request) {
	var rule monitoring.AlertRule
	if err := render.DecodeJSON(r.Body, &rule); err != nil {
		renderError(w, r, http.StatusBadRequest, "请求参数格式错误")
		return
	}

	created, err := c.monitor.AddAlertRule(rule)
	if err != nil {
		renderServiceError(w, r, err, "创建告警规则失败")
		return
	}
	renderSuccess(w, r, http.StatusCreated, "创建告警规则成功", created)
}

// UpdateAlertRule 部分更新告警规则
func (c *AlertController) UpdateAlertRule(w http.ResponseWriter, r *http.Request) {
	var fields map[string]interface{}
	if err := render.DecodeJSON(r.Body, &fields); err != nil {
		renderError(w, r, http.StatusBadRequest, "请求参数格式错误")
		return
	}

	updates, err := parseRuleUpdate(fields)
	if err != nil {
		renderError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := c.monitor.UpdateAlertRule(chi.URLParam(r, "id"), updates)
	if err != nil {
		renderServiceError(w, r, err, "更新告警规则失败")
		return
	}
	renderSuccess(w, r, http.StatusOK, "更新告警规则成功", updated)
}

// DeleteAlertRule 删除告警规则
func (c *AlertController) DeleteAlertRule(w http.ResponseWriter, r *http.Request) {
	if err := c.monitor.DeleteAlertRule(chi.URLParam(r, "id")); err != nil {
		renderServiceError(w, r, err, "删除告警规则失败")
		return
	}
	renderSuccess(w, r, http.StatusOK, "删除告警规则成功", nil)
}

// TestAlertRule 为规则记录一个越限样本，验证通知链路
func (c *AlertController) TestAlertRule(w http.ResponseWriter, r *http.Request) {
	var req TestRuleRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		renderError(w, r, http.StatusBadRequest, "请求参数格式错误")
		return
	}

	var rule monitoring.AlertRule
	switch {
	case req.RuleID != "":
		found, err := c.monitor.GetAlertRule(req.RuleID)
		if err != nil {
			renderServiceError(w, r, err, "测试告警规则失败")
			return
		}
		rule = found
	case req.Rule != nil && req.Rule.Metric != "":
		rule = *req.Rule
	default:
		renderError(w, r, http.StatusBadRequest, "rule_id 或 rule 不能为空")
		return
	}

	sample := c.monitor.TestRule(r.Context(), rule)
	renderSuccess(w, r, http.StatusOK, "测试样本已记录", sample)
}

// parseRuleUpdate 把 JSON 字段转换为规则部分更新，兼容字符串形式的数字与布尔值
func parseRuleUpdate(fields map[string]interface{}) (monitoring.AlertRuleUpdate, error) {
	var u monitoring.AlertRuleUpdate
	for key, raw := range fields {
		switch key {
		case "name":
			v := cast.ToString(raw)
			u.Name = &v
		case "description":
			v := cast.ToString(raw)
			u.Description = &v
		case "metric":
			v := cast.ToString(raw)
			u.Metric = &v
		case "condition":
			v := monitoring.Condition(cast.ToString(raw))
			u.Condition = &v
		case "severity":
			v := monitoring.Severity(cast.ToString(raw))
			u.Severity = &v
		case "threshold":
			v, err := cast.ToFloat64E(raw)
			if err != nil {
				return u, fmt.Errorf("threshold 格式错误: %v", raw)
			}
			u.Threshold = &v
		case "duration":
			v, err := cast.ToIntE(raw)
			if err != nil {
				return u, fmt.Errorf("duration 格式错误: %v", raw)
			}
			u.Duration = &v
		case "enabled":
			v, err := cast.ToBoolE(raw)
			if err != nil {
				return u, fmt.Errorf("enabled 格式错误: %v", raw)
			}
			u.Enabled = &v
		case "channels":
			list, err := cast.ToStringSliceE(raw)
			if err != nil {
				return u, fmt.Errorf("channels 格式错误: %v", raw)
			}
			u.Channels = make([]monitoring.ChannelKind, 0, len(list))
			for _, ch := range list {
				u.Channels = append(u.Channels, monitoring.ChannelKind(ch))
			}
		case "email_recipients":
			list, err := cast.ToStringSliceE(raw)
			if err != nil {
				return u, fmt.Errorf("email_recipients 格式错误: %v", raw)
			}
			u.EmailRecipients = list
		case "webhook_urls":
			list, err := cast.ToStringSliceE(raw)
			if err != nil {
				return u, fmt.Errorf("webhook_urls 格式错误: %v", raw)
			}
			u.WebhookURLs = list
		}
	}
	return u, nil
}
