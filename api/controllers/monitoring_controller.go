/*
 * @module api/controllers/monitoring_controller
 * @description 指标控制器，提供指标上报（单条、批量、API、业务）与性能、聚合指标查询
 * @architecture MVC架构 - 控制器层
 * @stateFlow 请求接收 -> 参数校验 -> 记录指标(触发告警评估) -> 响应返回
 * @rules 指标名不能为空；上报接口在告警分发完成后返回
 * @dependencies github.com/go-chi/chi/v5, github.com/go-chi/render
 * @refs service/monitoring/monitor_service.go
 */

package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"monitoring-service/service/monitoring"
)

// MonitoringController 指标控制器
type MonitoringController struct {
	monitor *monitoring.MonitorService
}

// NewMonitoringController 创建指标控制器实例
func NewMonitoringController(monitor *monitoring.MonitorService) *MonitoringController {
	return &MonitoringController{monitor: monitor}
}

// BatchMetricsRequest 批量上报请求
type BatchMetricsRequest struct {
	Metrics []monitoring.MetricSample `json:"metrics"`
}

// APIMetricRequest API调用指标上报请求
type APIMetricRequest struct {
	Endpoint     string  `json:"endpoint"`
	Method       string  `json:"method"`
	ResponseTime float64 `json:"response_time"`
	StatusCode   int     `json:"status_code"`
	UserID       string  `json:"user_id,omitempty"`
}

// RecordMetric 上报单条指标
func (c *MonitoringController) RecordMetric(w http.ResponseWriter, r *http.Request) {
	var sample monitoring.MetricSample
	if err := render.DecodeJSON(r.Body, &sample); err != nil {
		renderError(w, r, http.StatusBadRequest, "请求参数格式错误")
		return
	}
	if sample.Name == "" {
		renderError(w, r, http.StatusBadRequest, "指标名称不能为空")
		return
	}

	c.monitor.RecordMetric(r.Context(), sample)
	renderSuccess(w, r, http.StatusOK, "记录指标成功", nil)
}

// RecordMetrics 批量上报指标
func (c *MonitoringController) RecordMetrics(w http.ResponseWriter, r *http.Request) {
	var req BatchMetricsRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		renderError(w, r, http.StatusBadRequest, "请求参数格式错误")
		return
	}
	if len(req.Metrics) == 0 {
		renderError(w, r, http.StatusBadRequest, "指标列表不能为空")
		return
	}
	for _, sample := range req.Metrics {
		if sample.Name == "" {
			renderError(w, r, http.StatusBadRequest, "指标名称不能为空")
			return
		}
	}

	c.monitor.RecordMetrics(r.Context(), req.Metrics)
	renderSuccess(w, r, http.StatusOK, "批量记录指标成功", map[string]int{"count": len(req.Metrics)})
}

// RecordAPIMetric 上报API调用指标
func (c *MonitoringController) RecordAPIMetric(w http.ResponseWriter, r *http.Request) {
	var req APIMetricRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		renderError(w, r, http.StatusBadRequest, "请求参数格式错误")
		return
	}
	if req.Endpoint == "" || req.Method == "" || req.StatusCode == 0 {
		renderError(w, r, http.StatusBadRequest, "endpoint、method 和 status_code 不能为空")
		return
	}

	c.monitor.RecordAPIMetric(r.Context(), req.Endpoint, req.Method, req.ResponseTime, req.StatusCode, req.UserID)
	renderSuccess(w, r, http.StatusOK, "记录API指标成功", nil)
}

// RecordBusinessMetrics 上报业务指标
func (c *MonitoringController) RecordBusinessMetrics(w http.ResponseWriter, r *http.Request) {
	var metrics monitoring.BusinessMetrics
	if err := render.DecodeJSON(r.Body, &metrics); err != nil {
		renderError(w, r, http.StatusBadRequest, "请求参数格式错误")
		return
	}

	c.monitor.RecordBusinessMetrics(r.Context(), metrics)
	renderSuccess(w, r, http.StatusOK, "记录业务指标成功", nil)
}

// GetPerformanceMetrics 获取性能指标
func (c *MonitoringController) GetPerformanceMetrics(w http.ResponseWriter, r *http.Request) {
	renderSuccess(w, r, http.StatusOK, "获取性能指标成功", c.monitor.GetPerformanceMetrics())
}

// GetAggregatedMetric 获取单个指标的聚合统计
func (c *MonitoringController) GetAggregatedMetric(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	stats, ok := c.monitor.GetAggregatedMetric(name)
	if !ok {
		renderError(w, r, http.StatusNotFound, "指标不存在或已过期: "+name)
		return
	}
	renderSuccess(w, r, http.StatusOK, "获取聚合指标成功", stats)
}
