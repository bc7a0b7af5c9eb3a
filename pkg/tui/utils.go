// Package tui 工具函数和辅助类型
package tui

import (
	"fmt"
	"math"
)

// 扩展的颜色序列，按目标首次出现的顺序分配
var colorSequence = []string{
	"[green]", "[yellow]", "[blue]", "[magenta]", "[cyan]", "[red]",
	"[orange]", "[purple]", "[lime]", "[pink]",
	"[darkcyan]", "[darkgreen]", "[darkblue]", "[darkmagenta]",
}

// formatLatency 提供自适应的延迟格式化
func formatLatency(latency float64) string {
	if math.IsNaN(latency) {
		return "N/A"
	}

	if latency < 1.0 {
		// 小于1ms，显示为微秒
		return fmt.Sprintf("%.0fµs", latency*1000)
	} else if latency < 1000.0 {
		return fmt.Sprintf("%.1fms", latency)
	} else {
		return fmt.Sprintf("%.2fs", latency/1000)
	}
}

// getTargetColor 根据目标标识符获取对应的颜色
// 调用方需持有statsMu
func (t *TUI) getTargetColor(identifier string) string {
	if i, ok := t.colorIndex[identifier]; ok {
		return colorSequence[i%len(colorSequence)]
	}
	return "[white]"
}

// abs 返回整数的绝对值
func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// setMessage 设置状态栏提示
func (t *TUI) setMessage(msg string) {
	t.statsMu.Lock()
	t.message = msg
	t.statsMu.Unlock()
}

// Message 返回当前的状态栏提示
func (t *TUI) Message() string {
	t.statsMu.RLock()
	defer t.statsMu.RUnlock()
	return t.message
}

// selectedID 返回当前选中的目标，全选状态返回空字符串
func (t *TUI) selectedID() string {
	t.statsMu.RLock()
	defer t.statsMu.RUnlock()
	if t.selectedRow < 0 || t.selectedRow >= len(t.identifiers) {
		return ""
	}
	return t.identifiers[t.selectedRow]
}
