package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"monitoring-service/api/controllers"
	apimiddleware "monitoring-service/api/middleware"
	"monitoring-service/service/monitoring"
	"monitoring-service/service/rate_limiter"
)

func TestInitRoute(t *testing.T) {
	monitor := monitoring.NewMonitorService(monitoring.Options{})
	r := chi.NewRouter()
	InitRoute(r, Options{Monitor: monitor, ServiceName: "monitoring-service", Version: "1.0.0"})

	routes := map[string]bool{}
	require.NoError(t, chi.Walk(r, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		routes[method+" "+route] = true
		return nil
	}))

	for _, want := range []string{
		"GET /health",
		"GET /ready",
		"GET /health/detailed",
		"POST /monitoring/metrics/",
		"POST /monitoring/metrics/batch",
		"POST /monitoring/metrics/api",
		"POST /monitoring/metrics/business",
		"GET /monitoring/metrics/performance",
		"GET /monitoring/metrics/{name}",
		"GET /monitoring/alerts/",
		"GET /monitoring/alerts/{id}",
		"POST /monitoring/alerts/{id}/resolve",
		"GET /monitoring/alert-rules/",
		"POST /monitoring/alert-rules/",
		"POST /monitoring/alert-rules/test",
		"PUT /monitoring/alert-rules/{id}",
		"DELETE /monitoring/alert-rules/{id}",
	} {
		assert.True(t, routes[want], want)
	}
}

func TestRoutes_RequestsFeedAPIMetrics(t *testing.T) {
	monitor := monitoring.NewMonitorService(monitoring.Options{})
	r := chi.NewRouter()
	InitRoute(r, Options{Monitor: monitor, ServiceName: "monitoring-service", Version: "1.0.0"})

	body, _ := json.Marshal(monitoring.MetricSample{Name: "checkout_time", Value: 12})
	req := httptest.NewRequest(http.MethodPost, "/monitoring/metrics", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp controllers.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Status)

	_, ok := monitor.GetAggregatedMetric("checkout_time")
	assert.True(t, ok)

	assert.Eventually(t, func() bool {
		_, ok := monitor.GetAggregatedMetric("api_requests_total")
		return ok
	}, time.Second, 10*time.Millisecond, "中间件异步记录请求指标")
}

func TestRoutes_IngestRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	limiter := rate_limiter.NewRedisRateLimiter(client, rate_limiter.Limits{Window: time.Minute, PerClient: 1}, nil)
	monitor := monitoring.NewMonitorService(monitoring.Options{})
	r := chi.NewRouter()
	InitRoute(r, Options{Monitor: monitor, ServiceName: "monitoring-service", Version: "1.0.0", IngestLimiter: limiter})

	post := func() int {
		body, _ := json.Marshal(monitoring.MetricSample{Name: "checkout_time", Value: 12})
		req := httptest.NewRequest(http.MethodPost, "/monitoring/metrics", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(apimiddleware.UserIDHeader, "reporter-1")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, post())
	assert.Equal(t, http.StatusTooManyRequests, post())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/monitoring/metrics/performance", nil))
	assert.Equal(t, http.StatusOK, w.Code, "查询接口不限流")
}
