package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"monitoring-service/service/monitoring"
)

// alertRulesFile 规则文件结构
type alertRulesFile struct {
	Rules []monitoring.AlertRule `json:"rules" yaml:"rules"`
}

// LoadAlertRules 从 yaml/json 文件加载附加告警规则，按扩展名选择格式
func LoadAlertRules(path string) ([]monitoring.AlertRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取告警规则文件失败: %w", err)
	}

	var file alertRulesFile
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &file)
	case ".json":
		err = json.Unmarshal(data, &file)
	default:
		return nil, fmt.Errorf("不支持的告警规则文件格式: %s", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("解析告警规则文件失败: %w", err)
	}
	return file.Rules, nil
}
