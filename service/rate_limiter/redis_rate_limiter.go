/*
 * @module service/rate_limiter/redis_rate_limiter
 * @description 基于Redis的分布式限流服务，限制指标上报接口的全局与单客户端请求速率
 * @architecture 工具层 - 提供分布式限流能力
 * @stateFlow 检查限流规则 -> Redis计数 -> 判断是否超限
 * @rules 使用Redis INCR和EXPIRE实现固定窗口限流；先检查客户端再检查全局；上限为 0 的层不限流
 * @dependencies github.com/go-redis/redis/v8, code.cloudfoundry.org/clock
 * @refs api/middleware/rate_limit.go
 */

package rate_limiter

import (
	"context"
	"fmt"
	"math"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/go-redis/redis/v8"
)

const (
	ScopeGlobal = "global"
	ScopeClient = "client"

	keyPrefix = "monitoring:rate_limit"
)

// RateLimitResult 限流检查结果
type RateLimitResult struct {
	Allowed   bool   `json:"allowed"`    // 是否允许请求
	Limit     int    `json:"limit"`      // 限制数量
	Remaining int    `json:"remaining"`  // 剩余数量
	ResetAt   int64  `json:"reset_at"`   // 重置时间（Unix时间戳）
	Scope     string `json:"limit_type"` // 限流类型：global/client
	Message   string `json:"message"`    // 提示信息
}

// Limits 限流配置
type Limits struct {
	Window    time.Duration
	Global    int
	PerClient int
}

// 原子性计数：超限时不再累加
var checkScript = redis.NewScript(`
	local key = KEYS[1]
	local max_requests = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])

	-- 获取当前计数
	local current = redis.call('GET', key)
	if current == false then
		current = 0
	else
		current = tonumber(current)
	end

	-- 检查是否超限
	if current >= max_requests then
		local ttl = redis.call('TTL', key)
		if ttl < 0 then
			ttl = window
		end
		return {0, current, ttl}
	end

	-- 增加计数
	local new_count = redis.call('INCR', key)

	-- 如果是第一次请求，设置过期时间
	if new_count == 1 then
		redis.call('EXPIRE', key, window)
	end

	local ttl = redis.call('TTL', key)
	if ttl < 0 then
		ttl = window
	end

	return {1, new_count, ttl}
`)

// RedisRateLimiter Redis限流器
type RedisRateLimiter struct {
	client *redis.Client
	limits Limits
	clock  clock.Clock
}

// NewRedisRateLimiter 创建Redis限流器，window 不足 1 秒时按 1 秒处理
func NewRedisRateLimiter(client *redis.Client, limits Limits, clk clock.Clock) *RedisRateLimiter {
	if limits.Window < time.Second {
		limits.Window = time.Second
	}
	if clk == nil {
		clk = clock.NewClock()
	}
	return &RedisRateLimiter{client: client, limits: limits, clock: clk}
}

// Enabled 是否配置了任一层限流
func (r *RedisRateLimiter) Enabled() bool {
	return r.limits.Global > 0 || r.limits.PerClient > 0
}

// Allow 检查客户端本次请求是否允许（按优先级检查：客户端 -> 全局）
func (r *RedisRateLimiter) Allow(ctx context.Context, clientID string) (*RateLimitResult, error) {
	var last *RateLimitResult

	if r.limits.PerClient > 0 && clientID != "" {
		result, err := r.check(ctx, ScopeClient, clientID, r.limits.PerClient)
		if err != nil {
			return nil, err
		}
		if !result.Allowed {
			return result, nil
		}
		last = result
	}

	if r.limits.Global > 0 {
		result, err := r.check(ctx, ScopeGlobal, "", r.limits.Global)
		if err != nil {
			return nil, err
		}
		if !result.Allowed || last == nil || result.Remaining < last.Remaining {
			last = result
		}
	}

	if last == nil {
		// 没有限流规则，允许通过
		return &RateLimitResult{
			Allowed:   true,
			Limit:     -1,
			Remaining: -1,
			Scope:     "none",
			Message:   "无限流规则",
		}, nil
	}
	return last, nil
}

// check 检查单层限流
func (r *RedisRateLimiter) check(ctx context.Context, scope, targetID string, maxRequests int) (*RateLimitResult, error) {
	windowSeconds := int64(math.Ceil(r.limits.Window.Seconds()))
	key := r.buildKey(scope, targetID, windowSeconds)

	values, err := checkScript.Run(ctx, r.client, []string{key}, maxRequests, windowSeconds).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("限流检查失败: %w", err)
	}
	if len(values) != 3 {
		return nil, fmt.Errorf("限流脚本返回值异常: %v", values)
	}

	allowed := values[0] == 1
	remaining := maxRequests - int(values[1])
	if remaining < 0 {
		remaining = 0
	}

	message := "允许请求"
	if !allowed {
		message = fmt.Sprintf("超过%s限流限制", scopeName(scope))
	}

	return &RateLimitResult{
		Allowed:   allowed,
		Limit:     maxRequests,
		Remaining: remaining,
		ResetAt:   r.clock.Now().Add(time.Duration(values[2]) * time.Second).Unix(),
		Scope:     scope,
		Message:   message,
	}, nil
}

// buildKey 构造限流Key，同一窗口内的请求共用一个计数
func (r *RedisRateLimiter) buildKey(scope, targetID string, windowSeconds int64) string {
	currentWindow := r.clock.Now().Unix() / windowSeconds
	if scope == ScopeGlobal {
		return fmt.Sprintf("%s:%s:%d", keyPrefix, scope, currentWindow)
	}
	return fmt.Sprintf("%s:%s:%s:%d", keyPrefix, scope, targetID, currentWindow)
}

func scopeName(scope string) string {
	switch scope {
	case ScopeGlobal:
		return "全局"
	case ScopeClient:
		return "客户端"
	default:
		return "未知"
	}
}
