package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config 配置文件结构体
type Config struct {
	Version string `yaml:"version"`
	Sqlite  struct {
		Db     string `yaml:"db"`
		Prefix string `yaml:"prefix"`
	} `yaml:"sqlite"`
	Log struct {
		Level  string   `yaml:"level"`
		Writer []string `yaml:"writer"`
	} `yaml:"log"`
	Score struct {
		HalfLifeHours int `yaml:"halfLifeHours"` // 衰减半衰期（小时）
		DebounceMS    int `yaml:"debounceMS"`    // 评分发布防抖窗口（毫秒）
	} `yaml:"score"`
	Rules struct {
		IDBase      int   `yaml:"idBase"`      // 规则ID保留区起始值
		IDRange     int   `yaml:"idRange"`     // 保留区大小
		TimeSavedMS int64 `yaml:"timeSavedMS"` // 每次拦截的固定节省时间增量
	} `yaml:"rules"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	c := &Config{Version: "1.0.0"}
	c.Sqlite.Db = "data.db"
	c.Sqlite.Prefix = "cleantrail_"
	c.Log.Level = "info"
	c.Log.Writer = []string{"console"}
	c.Score.HalfLifeHours = 24
	c.Score.DebounceMS = 250
	c.Rules.IDBase = 100000
	c.Rules.IDRange = 10000
	c.Rules.TimeSavedMS = 50
	return c
}

// Load 从文件读取配置，文件缺失时返回默认配置
func Load(path string) (*Config, error) {
	c := NewConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, err
	}
	return c, nil
}
