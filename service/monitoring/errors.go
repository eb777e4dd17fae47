package monitoring

import "errors"

var (
	// ErrRuleNotFound 告警规则不存在
	ErrRuleNotFound = errors.New("告警规则不存在")
	// ErrRuleExists 告警规则ID重复
	ErrRuleExists = errors.New("告警规则已存在")
	// ErrInvalidRule 告警规则校验失败
	ErrInvalidRule = errors.New("告警规则无效")
	// ErrAlertNotFound 告警不存在
	ErrAlertNotFound = errors.New("告警不存在")
	// ErrChannelNotConfigured 通知渠道缺少配置
	ErrChannelNotConfigured = errors.New("通知渠道未配置")
	// ErrProbeNotConfigured 健康检查缺少配置
	ErrProbeNotConfigured = errors.New("健康检查未配置")
)
