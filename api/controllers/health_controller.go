/*
 * @module api/controllers/health_controller
 * @description 健康检查控制器，提供存活、就绪与依赖详细健康状态
 * @architecture MVC架构 - 控制器层
 * @stateFlow HTTP请求处理流程
 * @rules /health 不检查依赖；/health/detailed 在系统不健康时返回 503
 * @dependencies github.com/go-chi/render
 * @refs service/monitoring/health_checker.go
 */

package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/render"

	"monitoring-service/service/monitoring"
)

// HealthController 健康检查控制器
type HealthController struct {
	monitor     *monitoring.MonitorService
	serviceName string
	version     string
	startedAt   time.Time
}

// NewHealthController 创建健康检查控制器实例
func NewHealthController(monitor *monitoring.MonitorService, serviceName, version string) *HealthController {
	return &HealthController{
		monitor:     monitor,
		serviceName: serviceName,
		version:     version,
		startedAt:   time.Now(),
	}
}

// HealthResponse 健康检查响应结构
type HealthResponse struct {
	Status    string    `json:"status" example:"ok"`
	Timestamp time.Time `json:"timestamp" example:"2024-01-01T00:00:00Z"`
	Uptime    float64   `json:"uptime" example:"3600"`
	Version   string    `json:"version" example:"1.0.0"`
	Service   string    `json:"service" example:"monitoring-service"`
}

// Health 存活检查
func (c *HealthController) Health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, c.response("ok"))
}

// Ready 就绪检查
func (c *HealthController) Ready(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, c.response("ready"))
}

// Detailed 运行全部依赖探针并返回系统健康状态
func (c *HealthController) Detailed(w http.ResponseWriter, r *http.Request) {
	health := c.monitor.GetSystemHealth(r.Context())

	httpStatus, status := http.StatusOK, statusOK
	if health.Status == monitoring.HealthStateUnhealthy {
		httpStatus, status = http.StatusServiceUnavailable, statusError
	}

	render.Status(r, httpStatus)
	render.JSON(w, r, APIResponse{
		Status: status,
		Msg:    string(health.Status),
		Data:   health,
	})
}

func (c *HealthController) response(status string) HealthResponse {
	now := time.Now()
	return HealthResponse{
		Status:    status,
		Timestamp: now,
		Uptime:    now.Sub(c.startedAt).Seconds(),
		Version:   c.version,
		Service:   c.serviceName,
	}
}
