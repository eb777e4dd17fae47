/*
 * @module api/middleware/api_metrics
 * @description API指标中间件，统计每个请求的响应时间、状态码与在途连接数
 * @architecture 中间件模式
 * @stateFlow 请求进入 -> 在途计数+1 -> 处理 -> 记录API指标(异步) -> 在途计数-1
 * @rules 指标记录与告警分发不阻塞响应；endpoint 使用路由模板避免高基数
 * @dependencies github.com/go-chi/chi/v5
 */

package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// UserIDHeader 调用方用户标识
const UserIDHeader = "X-User-ID"

// APIMetricsRecorder API指标记录接口
type APIMetricsRecorder interface {
	RecordAPIMetric(ctx context.Context, endpoint, method string, responseTimeMs float64, statusCode int, userID string)
	TrackConnection() func()
}

// APIMetrics 返回记录API指标的中间件
func APIMetrics(recorder APIMetricsRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			done := recorder.TrackConnection()
			defer done()

			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			started := time.Now()

			next.ServeHTTP(ww, r)

			elapsed := float64(time.Since(started).Microseconds()) / 1000
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			endpoint := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					endpoint = pattern
				}
			}

			ctx := context.WithoutCancel(r.Context())
			method, userID := r.Method, r.Header.Get(UserIDHeader)
			go recorder.RecordAPIMetric(ctx, endpoint, method, elapsed, status, userID)
		})
	}
}
