package main

import (
	"fmt"
	"io"

	"github.com/Kevin-Rudy/pingdeck/pkg/pinger"
)

// 程序信息常量
const (
	AppName    = "pingdeck"
	AppVersion = "0.2.0"
	AppDesc    = "多区域网络延迟监控客户端"
)

// showSystemInfo 显示系统环境和探测实现
func showSystemInfo(out io.Writer) {
	osName, privilege, impl := pinger.GetSystemInfo()
	fmt.Fprintln(out, "\n系统信息:")
	fmt.Fprintf(out, "  操作系统: %s\n", osName)
	fmt.Fprintf(out, "  权限状态: %s\n", privilege)
	fmt.Fprintf(out, "  实现方式: %s\n", impl)
}

// printRunningConfig 打印运行配置信息
func printRunningConfig(out io.Writer, config *AppConfig) {
	fmt.Fprintf(out, "ping间隔: %v\n", config.PingerConfig.Interval)
	fmt.Fprintf(out, "ping超时: %v\n", config.PingerConfig.Timeout)
	fmt.Fprintf(out, "每轮次数: %d\n", config.MonitorConfig.SampleCount)
	fmt.Fprintf(out, "存储: %s\n", config.Store.Kind)
}

// printUsageInstructions 显示TUI操作说明
func printUsageInstructions(out io.Writer) {
	fmt.Fprintln(out, "操作说明:")
	fmt.Fprintln(out, "  ↑/↓ 方向键  - 导航选择目标")
	fmt.Fprintln(out, "  在边界继续按方向键 - 切换到全选模式")
	fmt.Fprintln(out, "  Enter/空格  - 开始或停止测量")
	fmt.Fprintln(out, "  f - 收藏  s - 全部停止  a - 添加  d - 删除")
	fmt.Fprintln(out, "  q 或 Ctrl+C - 退出程序")
	fmt.Fprintln(out, "========================================")
}
