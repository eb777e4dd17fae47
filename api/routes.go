/*
 * @module api/routes
 * @description API路由配置模块，负责初始化和配置所有HTTP路由
 * @architecture RESTful API架构
 * @stateFlow 无状态HTTP请求处理
 * @rules 遵循RESTful API设计规范，统一错误处理和响应格式
 * @dependencies github.com/go-chi/chi/v5, github.com/go-chi/cors, github.com/go-chi/render
 * @refs api/controllers, api/middleware
 */

package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"

	"monitoring-service/api/controllers"
	apimiddleware "monitoring-service/api/middleware"
	"monitoring-service/service/monitoring"
)

// Options 路由依赖
type Options struct {
	Monitor     *monitoring.MonitorService
	ServiceName string
	Version     string
	// IngestLimiter 指标上报接口限流器，可为 nil
	IngestLimiter apimiddleware.RateLimiter
}

// InitRoute 初始化所有API路由
func InitRoute(r chi.Router, opts Options) {
	monitor := opts.Monitor

	// 基础中间件
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(render.SetContentType(render.ContentTypeJSON))

	// CORS配置
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", apimiddleware.UserIDHeader},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Use(apimiddleware.APIMetrics(monitor))

	// 健康检查
	healthController := controllers.NewHealthController(monitor, opts.ServiceName, opts.Version)
	r.Get("/health", healthController.Health)
	r.Get("/ready", healthController.Ready)
	r.Get("/health/detailed", healthController.Detailed)

	r.Route("/monitoring", func(r chi.Router) {
		// 指标上报与查询
		monitoringController := controllers.NewMonitoringController(monitor)
		r.Route("/metrics", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(apimiddleware.RateLimit(opts.IngestLimiter))
				r.Post("/", monitoringController.RecordMetric)
				r.Post("/batch", monitoringController.RecordMetrics)
				r.Post("/api", monitoringController.RecordAPIMetric)
				r.Post("/business", monitoringController.RecordBusinessMetrics)
			})
			r.Get("/performance", monitoringController.GetPerformanceMetrics)
			r.Get("/{name}", monitoringController.GetAggregatedMetric)
		})

		alertController := controllers.NewAlertController(monitor)

		// 告警
		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", alertController.GetActiveAlerts)
			r.Get("/{id}", alertController.GetAlert)
			r.Post("/{id}/resolve", alertController.ResolveAlert)
		})

		// 告警规则
		r.Route("/alert-rules", func(r chi.Router) {
			r.Get("/", alertController.GetAlertRules)
			r.Post("/", alertController.CreateAlertRule)
			r.Post("/test", alertController.TestAlertRule)
			r.Get("/{id}", alertController.GetAlertRule)
			r.Put("/{id}", alertController.UpdateAlertRule)
			r.Delete("/{id}", alertController.DeleteAlertRule)
		})
	})
}
