// Package tui 配置定义
package tui

import (
	"errors"
	"time"
)

// Config TUI组件的配置结构
type Config struct {
	RefreshInterval  time.Duration // UI刷新间隔
	SampleInterval   time.Duration // 探测间隔，决定图表时间窗口的长度
	MinChartWidth    int           // 最小图表宽度
	MinChartHeight   int           // 最小图表高度
	MaxHistorySize   int           // 历史缓冲区大小
	ValueBufferRatio float64       // 值缓冲比例
	MaxChartSize     int           // 最大图表尺寸（防止极端值）
	DefaultCeiling   float64       // 纵轴上限的最小值（毫秒）
	NavigationRate   float64       // 每秒最多处理的导航按键
	NavigationBurst  int           // 导航按键的突发上限
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		RefreshInterval:  200 * time.Millisecond, // 默认200ms刷新
		SampleInterval:   time.Second,            // 与默认探测间隔一致
		MinChartWidth:    20,                     // 最小图表宽度
		MinChartHeight:   5,                      // 最小图表高度
		MaxHistorySize:   150,                    // 默认150个历史点
		ValueBufferRatio: 0.1,                    // 10%缓冲
		MaxChartSize:     1000,                   // 最大图表尺寸
		DefaultCeiling:   5,                      // 纵轴至少显示到5ms
		NavigationRate:   20,
		NavigationBurst:  5,
	}
}

// WindowDuration 返回图表时间窗口长度
func (c *Config) WindowDuration() time.Duration {
	return time.Duration(c.MaxHistorySize) * c.SampleInterval
}

// Validate 验证配置的合理性
func (c *Config) Validate() error {
	if c.RefreshInterval <= 0 {
		return errors.New("UI刷新间隔必须大于0")
	}

	if c.RefreshInterval < 10*time.Millisecond {
		return errors.New("UI刷新间隔不能小于10ms")
	}

	if c.SampleInterval <= 0 {
		return errors.New("探测间隔必须大于0")
	}

	if c.MinChartWidth <= 0 {
		return errors.New("最小图表宽度必须大于0")
	}

	if c.MinChartHeight <= 0 {
		return errors.New("最小图表高度必须大于0")
	}

	if c.MaxHistorySize < 10 {
		return errors.New("历史缓冲区大小不能小于10")
	}

	if c.MaxHistorySize > 1000 {
		return errors.New("历史缓冲区大小不能超过1000")
	}

	if c.ValueBufferRatio < 0 {
		return errors.New("值缓冲比例不能为负数")
	}

	if c.MaxChartSize <= 0 {
		return errors.New("最大图表尺寸必须大于0")
	}

	if c.DefaultCeiling < 0 {
		return errors.New("纵轴上限不能为负数")
	}

	if c.NavigationRate <= 0 || c.NavigationBurst <= 0 {
		return errors.New("导航频率限制必须大于0")
	}

	return nil
}
