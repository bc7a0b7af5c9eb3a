// Package tui 数据处理模块
package tui

import (
	"fmt"
	"math"

	"github.com/Kevin-Rudy/pingdeck/pkg/core"
	"github.com/Kevin-Rudy/pingdeck/pkg/monitor"
)

// 数据行的统计列，按显示顺序排列
var summaryColumns = []string{"状态", "进度", "丢包率", "平均", "最小", "最大", "标准差"}

// refreshStatuses 从监控器拉取最新的目标状态
func (t *TUI) refreshStatuses() {
	statuses := t.ctrl.Statuses()

	t.statsMu.Lock()
	defer t.statsMu.Unlock()

	t.statuses = statuses
	identifiers := make([]string, 0, len(statuses))
	for _, st := range statuses {
		identifiers = append(identifiers, st.Endpoint.ID)
		if _, ok := t.colorIndex[st.Endpoint.ID]; !ok {
			t.colorIndex[st.Endpoint.ID] = len(t.colorIndex)
		}
	}
	t.identifiers = identifiers

	// 确保选择状态正确
	if t.selectedRow >= len(t.identifiers) {
		t.selectedRow = len(t.identifiers) - 1
	}
}

// handleEvents 处理一批路由过来的事件，只有结束事件会产生提示
func (t *TUI) handleEvents(events []core.SampleEvent) {
	for _, ev := range events {
		if !ev.Kind.Terminal() {
			continue
		}
		name := ev.EndpointID
		if st, ok := t.statusFor(ev.EndpointID); ok {
			name = st.Endpoint.Name
		}
		if ev.Kind == core.EventComplete {
			t.setMessage(fmt.Sprintf("[green]%s 测量完成[white]", name))
		} else {
			t.setMessage(fmt.Sprintf("[yellow]%s 已停止[white]", name))
		}
	}
}

// statusFor 按标识符查找最近一次拉取的状态
func (t *TUI) statusFor(id string) (monitor.Status, bool) {
	t.statsMu.RLock()
	defer t.statsMu.RUnlock()
	for _, st := range t.statuses {
		if st.Endpoint.ID == id {
			return st, true
		}
	}
	return monitor.Status{}, false
}

// summarize 生成数据行各列的显示文本
func summarize(st monitor.Status, sampleCount int) map[string]string {
	snap := st.Session
	s := snap.Stats

	state := "[gray]空闲[white]"
	switch {
	case snap.Stopping:
		state = "[yellow]停止中[white]"
	case snap.Running:
		state = "[green]运行[white]"
	}

	progress := "-"
	if snap.Running || s.Attempts() > 0 {
		progress = fmt.Sprintf("%d/%d", s.Attempts(), sampleCount)
	}

	loss := "N/A"
	if s.Attempts() > 0 {
		loss = fmt.Sprintf("%.1f%%", s.Loss)
	}

	stddev := "N/A"
	if !math.IsNaN(s.StdDev) {
		stddev = formatLatency(s.StdDev)
	}

	return map[string]string{
		"状态":  state,
		"进度":  progress,
		"丢包率": loss,
		"平均":  formatLatency(s.Avg),
		"最小":  formatLatency(s.Min),
		"最大":  formatLatency(s.Max),
		"标准差": stddev,
	}
}

// displayName 返回带收藏标记的目标名称
func displayName(e core.Endpoint) string {
	if e.Favorite {
		return "★ " + e.Name
	}
	return e.Name
}
