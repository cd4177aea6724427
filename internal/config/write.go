package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// WriteDefault 生成一份带默认值的起始配置，已存在则拒绝覆盖。
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("配置已存在: %s", path)
	}
	var cfg Config
	cfg.applyDefaults()
	cfg.Backtest.Start = "2020-01-01"
	cfg.Backtest.End = "2023-01-01"
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}
