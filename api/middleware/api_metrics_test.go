package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiCall struct {
	endpoint, method, userID string
	statusCode               int
	responseTimeMs           float64
}

type fakeRecorder struct {
	mu       sync.Mutex
	calls    []apiCall
	inFlight int
	peak     int
	recorded chan struct{}
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{recorded: make(chan struct{}, 10)}
}

func (f *fakeRecorder) RecordAPIMetric(ctx context.Context, endpoint, method string, responseTimeMs float64, statusCode int, userID string) {
	f.mu.Lock()
	f.calls = append(f.calls, apiCall{endpoint: endpoint, method: method, userID: userID, statusCode: statusCode, responseTimeMs: responseTimeMs})
	f.mu.Unlock()
	f.recorded <- struct{}{}
}

func (f *fakeRecorder) TrackConnection() func() {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.peak {
		f.peak = f.inFlight
	}
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}
}

func (f *fakeRecorder) wait(t *testing.T) apiCall {
	t.Helper()
	select {
	case <-f.recorded:
	case <-time.After(time.Second):
		t.Fatal("API指标未记录")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

func TestAPIMetrics_RecordsRoutePatternAndStatus(t *testing.T) {
	recorder := newFakeRecorder()

	r := chi.NewRouter()
	r.Use(APIMetrics(recorder))
	r.Get("/orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(5 * time.Millisecond)
		w.WriteHeader(http.StatusNotFound)
	})
	r.Get("/ok", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	req := httptest.NewRequest(http.MethodGet, "/orders/42", nil)
	req.Header.Set(UserIDHeader, "user-7")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusNotFound, w.Code)

	call := recorder.wait(t)
	assert.Equal(t, "/orders/{id}", call.endpoint)
	assert.Equal(t, http.MethodGet, call.method)
	assert.Equal(t, http.StatusNotFound, call.statusCode)
	assert.Equal(t, "user-7", call.userID)
	assert.GreaterOrEqual(t, call.responseTimeMs, 5.0)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	call = recorder.wait(t)
	assert.Equal(t, http.StatusOK, call.statusCode, "未显式写状态码时按 200 记录")
	assert.Empty(t, call.userID)

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	assert.Equal(t, 0, recorder.inFlight)
	assert.Equal(t, 1, recorder.peak)
}

func TestAPIMetrics_DetachedFromRequestContext(t *testing.T) {
	var gotErr error
	done := make(chan struct{})
	recorder := &ctxRecorder{fn: func(ctx context.Context) {
		gotErr = ctx.Err()
		close(done)
	}}

	handler := APIMetrics(recorder)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/x", nil).WithContext(ctx)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	cancel()

	<-done
	assert.NoError(t, gotErr)
}

type ctxRecorder struct {
	fn func(ctx context.Context)
}

func (c *ctxRecorder) RecordAPIMetric(ctx context.Context, _, _ string, _ float64, _ int, _ string) {
	// 等待请求上下文取消后再检查
	time.Sleep(10 * time.Millisecond)
	c.fn(ctx)
}

func (c *ctxRecorder) TrackConnection() func() { return func() {} }
