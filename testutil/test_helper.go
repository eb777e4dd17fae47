/*
 * @module testutil/test_helper
 * @description 测试工具和辅助函数
 * @architecture 测试基础设施 - 提供测试数据库、业务数据工厂与 HTTP 测试工具
 * @stateFlow 测试环境初始化 -> 测试数据创建 -> 测试执行 -> 清理资源
 * @rules 提供可重用的测试工具，确保测试环境的一致性
 * @dependencies gorm, sqlite, testify
 */

package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Order 订单表
type Order struct {
	ID          string `gorm:"primaryKey"`
	Status      string
	TotalAmount float64
	CreatedAt   time.Time
}

// User 用户表
type User struct {
	ID        string `gorm:"primaryKey"`
	Status    string
	CreatedAt time.Time
}

// Chef 厨师表
type Chef struct {
	ID        string `gorm:"primaryKey"`
	Status    string
	CreatedAt time.Time
}

// Driver 配送员表
type Driver struct {
	ID        string `gorm:"primaryKey"`
	Status    string
	CreatedAt time.Time
}

// LiveSession 直播会话表
type LiveSession struct {
	ID        string `gorm:"primaryKey"`
	Status    string
	CreatedAt time.Time
}

// Review 评价表
type Review struct {
	ID        string `gorm:"primaryKey"`
	Rating    float64
	CreatedAt time.Time
}

// TestDB 测试数据库配置
type TestDB struct {
	DB *gorm.DB
}

// NewTestDB 创建测试数据库
func NewTestDB() *TestDB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		panic(fmt.Sprintf("failed to connect test database: %v", err))
	}

	// 内存库每个连接独立，限制为单连接
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}

	return &TestDB{DB: db}
}

// NewBusinessTestDB 创建带业务表的测试数据库
func NewBusinessTestDB() *TestDB {
	tdb := NewTestDB()
	err := tdb.DB.AutoMigrate(
		&Order{},
		&User{},
		&Chef{},
		&Driver{},
		&LiveSession{},
		&Review{},
	)
	if err != nil {
		panic(fmt.Sprintf("failed to migrate test database: %v", err))
	}
	return tdb
}

// CleanDB 清理数据库
func (tdb *TestDB) CleanDB() {
	tables := []string{
		"orders",
		"users",
		"chefs",
		"drivers",
		"live_sessions",
		"reviews",
	}

	for _, table := range tables {
		tdb.DB.Exec(fmt.Sprintf("DELETE FROM %s", table))
	}
}

// Close 关闭数据库连接
func (tdb *TestDB) Close() {
	if db, err := tdb.DB.DB(); err == nil {
		db.Close()
	}
}

// TestDataFactory 测试数据工厂
type TestDataFactory struct {
	DB *gorm.DB
}

// NewTestDataFactory 创建测试数据工厂
func NewTestDataFactory(db *gorm.DB) *TestDataFactory {
	return &TestDataFactory{DB: db}
}

// CreateOrder 创建测试订单
func (f *TestDataFactory) CreateOrder(status string, amount float64) *Order {
	order := &Order{ID: generateID("order"), Status: status, TotalAmount: amount, CreatedAt: time.Now()}
	f.mustCreate(order)
	return order
}

// CreateUser 创建测试用户
func (f *TestDataFactory) CreateUser(status string) *User {
	user := &User{ID: generateID("user"), Status: status, CreatedAt: time.Now()}
	f.mustCreate(user)
	return user
}

// CreateChef 创建测试厨师
func (f *TestDataFactory) CreateChef(status string) *Chef {
	chef := &Chef{ID: generateID("chef"), Status: status, CreatedAt: time.Now()}
	f.mustCreate(chef)
	return chef
}

// CreateDriver 创建测试配送员
func (f *TestDataFactory) CreateDriver(status string) *Driver {
	driver := &Driver{ID: generateID("driver"), Status: status, CreatedAt: time.Now()}
	f.mustCreate(driver)
	return driver
}

// CreateLiveSession 创建测试直播会话
func (f *TestDataFactory) CreateLiveSession(status string) *LiveSession {
	session := &LiveSession{ID: generateID("live"), Status: status, CreatedAt: time.Now()}
	f.mustCreate(session)
	return session
}

// CreateReview 创建测试评价
func (f *TestDataFactory) CreateReview(rating float64) *Review {
	review := &Review{ID: generateID("review"), Rating: rating, CreatedAt: time.Now()}
	f.mustCreate(review)
	return review
}

func (f *TestDataFactory) mustCreate(value interface{}) {
	if err := f.DB.Create(value).Error; err != nil {
		panic(fmt.Sprintf("failed to create test record %T: %v", value, err))
	}
}

func generateID(prefix string) string {
	return prefix + "_" + uuid.NewString()
}

// CapturedRequest 记录到的请求
type CapturedRequest struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

// RecordingServer 记录所有请求的 HTTP 测试服务器
type RecordingServer struct {
	*httptest.Server

	mu       sync.Mutex
	status   int
	requests []CapturedRequest
}

// NewRecordingServer 创建记录服务器，所有请求返回 status
func NewRecordingServer(status int) *RecordingServer {
	rs := &RecordingServer{status: status}
	rs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		rs.mu.Lock()
		rs.requests = append(rs.requests, CapturedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Header: r.Header.Clone(),
			Body:   body,
		})
		status := rs.status
		rs.mu.Unlock()
		w.WriteHeader(status)
	}))
	return rs
}

// Requests 返回已记录请求的副本
func (rs *RecordingServer) Requests() []CapturedRequest {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return append([]CapturedRequest(nil), rs.requests...)
}

// SetStatus 修改后续请求的响应码
func (rs *RecordingServer) SetStatus(status int) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.status = status
}

// HTTPTestHelper HTTP测试辅助工具
type HTTPTestHelper struct{}

// NewHTTPTestHelper 创建HTTP测试辅助工具
func NewHTTPTestHelper() *HTTPTestHelper {
	return &HTTPTestHelper{}
}

// CreateJSONRequest 创建JSON请求
func (h *HTTPTestHelper) CreateJSONRequest(method, url string, body interface{}) (*http.Request, error) {
	var reqBody io.Reader

	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewBuffer(jsonBody)
	}

	req := httptest.NewRequest(method, url, reqBody)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return req, nil
}

// AssertJSONResponse 断言JSON响应
func (h *HTTPTestHelper) AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedBody interface{}) {
	assert.Equal(t, expectedStatus, w.Code)

	if expectedBody != nil {
		var actualBody interface{}
		err := json.Unmarshal(w.Body.Bytes(), &actualBody)
		assert.NoError(t, err)

		expectedJSON, _ := json.Marshal(expectedBody)
		actualJSON, _ := json.Marshal(actualBody)

		assert.JSONEq(t, string(expectedJSON), string(actualJSON))
	}
}
