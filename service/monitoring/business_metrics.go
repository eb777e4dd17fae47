package monitoring

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// BusinessMetricsSource 业务指标数据源
type BusinessMetricsSource interface {
	Collect(ctx context.Context) (BusinessMetrics, error)
}

// GormBusinessMetricsSource 从业务库按表统计业务指标
type GormBusinessMetricsSource struct {
	db *gorm.DB
}

// NewGormBusinessMetricsSource 创建业务指标数据源
func NewGormBusinessMetricsSource(db *gorm.DB) *GormBusinessMetricsSource {
	return &GormBusinessMetricsSource{db: db}
}

// Collect 统计业务指标；单项查询失败时该项留空，错误合并返回
func (s *GormBusinessMetricsSource) Collect(ctx context.Context) (BusinessMetrics, error) {
	var metrics BusinessMetrics
	if s.db == nil {
		return metrics, fmt.Errorf("%w: business metrics database", ErrProbeNotConfigured)
	}
	db := s.db.WithContext(ctx)

	var errs []error
	count := func(table, where string, args ...interface{}) *float64 {
		var n int64
		q := db.Table(table)
		if where != "" {
			q = q.Where(where, args...)
		}
		if err := q.Count(&n).Error; err != nil {
			errs = append(errs, fmt.Errorf("统计 %s 失败: %w", table, err))
			return nil
		}
		v := float64(n)
		return &v
	}
	scalar := func(table, expr, where string, args ...interface{}) *float64 {
		var v sql.NullFloat64
		q := db.Table(table).Select(expr)
		if where != "" {
			q = q.Where(where, args...)
		}
		if err := q.Row().Scan(&v); err != nil {
			errs = append(errs, fmt.Errorf("统计 %s 失败: %w", table, err))
			return nil
		}
		if !v.Valid {
			return nil
		}
		return &v.Float64
	}

	metrics.TotalOrders = count("orders", "")
	metrics.TotalRevenue = scalar("orders", "COALESCE(SUM(total_amount), 0)", "status = ?", "completed")
	metrics.ActiveUsers = count("users", "status = ?", "active")
	metrics.ActiveChefs = count("chefs", "status = ?", "active")
	metrics.ActiveDrivers = count("drivers", "status = ?", "active")
	metrics.LiveSessions = count("live_sessions", "status = ?", "live")
	metrics.CustomerSatisfaction = scalar("reviews", "AVG(rating)", "")

	if completed := count("orders", "status = ?", "completed"); completed != nil && metrics.TotalOrders != nil && *metrics.TotalOrders > 0 {
		rate := *completed / *metrics.TotalOrders
		metrics.OrderCompletionRate = &rate
	}

	return metrics, errors.Join(errs...)
}
