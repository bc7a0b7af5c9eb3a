package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Kevin-Rudy/pingdeck/pkg/feed"
	"github.com/Kevin-Rudy/pingdeck/pkg/monitor"
	"github.com/Kevin-Rudy/pingdeck/pkg/pinger"
	"github.com/Kevin-Rudy/pingdeck/pkg/tui"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

// 存储类型
const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

// AppConfig 应用层配置聚合
type AppConfig struct {
	PingerConfig  *pinger.Config
	MonitorConfig *monitor.Config
	TUIConfig     *tui.Config
	FeedConfig    *feed.Config
	Store         StoreConfig
	Log           LogConfig
}

// StoreConfig 持久化存储配置
type StoreConfig struct {
	Kind string `yaml:"kind"`
	Path string `yaml:"path"`
}

// LogConfig 日志配置
type LogConfig struct {
	File  string `yaml:"file"`
	Level string `yaml:"level"`
}

// FileConfig 配置文件结构，未出现的字段保留默认值
type FileConfig struct {
	Ping struct {
		IPVersion  int           `yaml:"ip_version"`
		Interval   time.Duration `yaml:"interval"`
		Timeout    time.Duration `yaml:"timeout"`
		Mode       string        `yaml:"mode"`
		StartRate  float64       `yaml:"start_rate"`
		StartBurst int           `yaml:"start_burst"`
	} `yaml:"ping"`
	Monitor struct {
		SampleCount int `yaml:"sample_count"`
		HistorySize int `yaml:"history_size"`
	} `yaml:"monitor"`
	UI struct {
		RefreshInterval time.Duration `yaml:"refresh_interval"`
		Ceiling         float64       `yaml:"ceiling"`
	} `yaml:"ui"`
	Feed struct {
		Addr             string        `yaml:"addr"`
		SnapshotInterval time.Duration `yaml:"snapshot_interval"`
		MaxClients       int           `yaml:"max_clients"`
		AllowedOrigins   []string      `yaml:"allowed_origins"`
		AuthToken        string        `yaml:"auth_token"`
	} `yaml:"feed"`
	Store StoreConfig `yaml:"store"`
	Log   LogConfig   `yaml:"log"`
}

// defaultFileConfig 返回用各包默认值填充的配置文件结构
func defaultFileConfig() *FileConfig {
	p := pinger.DefaultConfig()
	m := monitor.DefaultConfig()
	u := tui.DefaultConfig()
	f := feed.DefaultConfig()

	fc := &FileConfig{}
	fc.Ping.IPVersion = p.IPVersion
	fc.Ping.Interval = p.Interval
	fc.Ping.Timeout = p.Timeout
	fc.Ping.Mode = p.Mode
	fc.Ping.StartRate = p.StartRate
	fc.Ping.StartBurst = p.StartBurst
	fc.Monitor.SampleCount = m.SampleCount
	fc.Monitor.HistorySize = m.HistorySize
	fc.UI.RefreshInterval = u.RefreshInterval
	fc.UI.Ceiling = u.DefaultCeiling
	fc.Feed.Addr = f.Addr
	fc.Feed.SnapshotInterval = f.SnapshotInterval
	fc.Feed.MaxClients = f.MaxClients
	fc.Store.Kind = StoreFile
	fc.Log.Level = "info"
	return fc
}

// loadFileConfig 读取配置文件，path为空时只返回默认值
func loadFileConfig(path string) (*FileConfig, error) {
	fc := defaultFileConfig()
	if path == "" {
		return fc, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, fc); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	return fc, nil
}

// toAppConfig 把配置文件结构转换为各包的配置
func (fc *FileConfig) toAppConfig() *AppConfig {
	pingerConfig := pinger.DefaultConfig()
	pingerConfig.IPVersion = fc.Ping.IPVersion
	pingerConfig.Interval = fc.Ping.Interval
	pingerConfig.Timeout = fc.Ping.Timeout
	pingerConfig.Mode = fc.Ping.Mode
	pingerConfig.StartRate = fc.Ping.StartRate
	pingerConfig.StartBurst = fc.Ping.StartBurst

	monitorConfig := monitor.DefaultConfig()
	monitorConfig.SampleCount = fc.Monitor.SampleCount
	monitorConfig.HistorySize = fc.Monitor.HistorySize

	tuiConfig := tui.DefaultConfig()
	tuiConfig.RefreshInterval = fc.UI.RefreshInterval
	tuiConfig.DefaultCeiling = fc.UI.Ceiling

	feedConfig := feed.DefaultConfig()
	feedConfig.Addr = fc.Feed.Addr
	feedConfig.SnapshotInterval = fc.Feed.SnapshotInterval
	feedConfig.MaxClients = fc.Feed.MaxClients
	feedConfig.AllowedOrigins = fc.Feed.AllowedOrigins
	feedConfig.AuthToken = fc.Feed.AuthToken

	return &AppConfig{
		PingerConfig:  pingerConfig,
		MonitorConfig: monitorConfig,
		TUIConfig:     tuiConfig,
		FeedConfig:    feedConfig,
		Store:         fc.Store,
		Log:           fc.Log,
	}
}

// buildConfigFromCLI 默认值 < 配置文件 < 命令行参数
func buildConfigFromCLI(c *cli.Context) (*AppConfig, error) {
	fc, err := loadFileConfig(c.String("config"))
	if err != nil {
		return nil, err
	}
	config := fc.toAppConfig()

	if c.Bool("6") {
		config.PingerConfig.IPVersion = 6
	} else if c.IsSet("4") {
		config.PingerConfig.IPVersion = 4
	}
	if c.IsSet("interval") {
		config.PingerConfig.Interval = c.Duration("interval")
	}
	if c.IsSet("timeout") {
		config.PingerConfig.Timeout = c.Duration("timeout")
	}
	if c.IsSet("mode") {
		config.PingerConfig.Mode = c.String("mode")
	}
	if c.IsSet("count") {
		config.MonitorConfig.SampleCount = c.Int("count")
	}
	if c.IsSet("buffer") {
		config.MonitorConfig.HistorySize = c.Int("buffer")
	}
	if c.IsSet("refresh-rate") {
		config.TUIConfig.RefreshInterval = c.Duration("refresh-rate")
	}
	if c.IsSet("chart-width") {
		config.TUIConfig.MinChartWidth = c.Int("chart-width")
	}
	if c.IsSet("chart-height") {
		config.TUIConfig.MinChartHeight = c.Int("chart-height")
	}
	if c.IsSet("ceiling") {
		config.TUIConfig.DefaultCeiling = c.Float64("ceiling")
	}
	if c.IsSet("store") {
		config.Store.Kind = c.String("store")
	}
	if c.IsSet("store-path") {
		config.Store.Path = c.String("store-path")
	}
	if c.IsSet("log-file") {
		config.Log.File = c.String("log-file")
	}
	if c.IsSet("log-level") {
		config.Log.Level = c.String("log-level")
	}

	// 图表时间窗口与会话缓冲区保持一致
	config.TUIConfig.MaxHistorySize = config.MonitorConfig.HistorySize
	config.TUIConfig.SampleInterval = config.PingerConfig.Interval

	return config, nil
}

// validateConfig 验证配置的合理性
func validateConfig(config *AppConfig) error {
	if err := config.PingerConfig.Validate(); err != nil {
		return fmt.Errorf("pinger配置错误: %v", err)
	}
	if err := config.MonitorConfig.Validate(); err != nil {
		return fmt.Errorf("monitor配置错误: %v", err)
	}
	if err := config.TUIConfig.Validate(); err != nil {
		return fmt.Errorf("tui配置错误: %v", err)
	}
	if err := config.FeedConfig.Validate(); err != nil {
		return fmt.Errorf("feed配置错误: %v", err)
	}
	switch config.Store.Kind {
	case StoreFile, StoreSQLite, StoreMemory:
	default:
		return fmt.Errorf("未知的存储类型: %q", config.Store.Kind)
	}
	if _, err := parseLevel(config.Log.Level); err != nil {
		return err
	}
	return nil
}

var errConflictingIP = errors.New("-4 和 -6 选项不能同时使用")
