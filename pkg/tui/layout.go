// Package tui 布局管理模块
package tui

import (
	"fmt"
	"time"

	"github.com/Kevin-Rudy/pingdeck/pkg/monitor"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

const helpText = "[gray]↑/↓ 选择  Enter 开始/停止  f 收藏  a 添加  d 删除  s 全部停止  q 退出[white]"

// setupUI 设置用户界面布局
func (t *TUI) setupUI() {
	t.chart.SetWordWrap(false)
	t.chart.SetDynamicColors(true)
	t.chart.SetText("[yellow]正在加载目标...[white]")

	t.status.SetDynamicColors(true)
	t.status.SetText(helpText)

	t.flex = tview.NewFlex()
	t.flex.SetDirection(tview.FlexRow)
	t.flex.AddItem(t.chart, 0, 1, false)
	t.flex.AddItem(t.status, 1, 0, false)

	t.pages = tview.NewPages()
	t.pages.AddPage(pageMain, t.flex, true, true)

	t.app.SetRoot(t.pages, true)
}

// redraw 重建整个界面，必须在UI goroutine中调用
func (t *TUI) redraw() {
	t.rebuildUI()
	t.updateChart()
	t.updateStatusBar()
}

// rebuildUI 重建目标表格
func (t *TUI) rebuildUI() {
	if t.testMode {
		return
	}

	t.statsMu.RLock()
	defer t.statsMu.RUnlock()

	t.flex.Clear()
	t.rowFlex = make([]*tview.Flex, 0, len(t.statuses)+1) // +1 为表头行

	headerFlex := t.createHeaderRow()
	t.flex.AddItem(headerFlex, 1, 0, false)
	t.rowFlex = append(t.rowFlex, headerFlex)

	sampleCount := t.ctrl.SampleCount()
	for _, st := range t.statuses {
		rowFlex := t.createDataRow(st, sampleCount)
		t.flex.AddItem(rowFlex, 1, 0, false)
		t.rowFlex = append(t.rowFlex, rowFlex)
	}

	// 图表占据所有剩余空间
	t.flex.AddItem(t.chart, 0, 1, false)
	t.flex.AddItem(t.status, 1, 0, false)

	t.updateSelectionLocked()
}

// createHeaderRow 创建表头行
func (t *TUI) createHeaderRow() *tview.Flex {
	headerFlex := tview.NewFlex()
	headerFlex.SetDirection(tview.FlexColumn)

	targetHeaderText := tview.NewTextView()
	targetHeaderText.SetText(fmt.Sprintf("[yellow]%-20s[white]", "目标"))
	targetHeaderText.SetDynamicColors(true)
	targetHeaderText.SetTextAlign(tview.AlignLeft)
	headerFlex.AddItem(targetHeaderText, 0, 3, false) // 给目标列更多空间

	for _, header := range summaryColumns {
		headerText := tview.NewTextView()
		headerText.SetText(fmt.Sprintf("[yellow]%8s[white]", header))
		headerText.SetDynamicColors(true)
		headerText.SetTextAlign(tview.AlignCenter)
		headerFlex.AddItem(headerText, 0, 1, false)
	}

	return headerFlex
}

// createDataRow 创建数据行
func (t *TUI) createDataRow(st monitor.Status, sampleCount int) *tview.Flex {
	rowFlex := tview.NewFlex()
	rowFlex.SetDirection(tview.FlexColumn)

	// 与图表颜色一致
	color := t.getTargetColor(st.Endpoint.ID)

	targetText := tview.NewTextView()
	targetText.SetText(fmt.Sprintf("%s%-20s[white]", color, tview.Escape(displayName(st.Endpoint))))
	targetText.SetDynamicColors(true)
	targetText.SetTextAlign(tview.AlignLeft)
	rowFlex.AddItem(targetText, 0, 3, false)

	summary := summarize(st, sampleCount)
	for _, key := range summaryColumns {
		dataText := tview.NewTextView()
		dataText.SetText(fmt.Sprintf("%8s", summary[key]))
		dataText.SetDynamicColors(true)
		dataText.SetTextAlign(tview.AlignCenter)
		dataText.SetTextColor(tcell.ColorWhite)
		rowFlex.AddItem(dataText, 0, 1, false)
	}

	return rowFlex
}

// updateChart 更新图表显示
func (t *TUI) updateChart() {
	if t.testMode || t.chart == nil {
		return
	}

	t.statsMu.RLock()
	selected := ""
	if t.selectedRow >= 0 && t.selectedRow < len(t.identifiers) {
		selected = t.identifiers[t.selectedRow]
	}
	series := t.collectSeries(selected)
	t.statsMu.RUnlock()

	// 获取图表视图的实际可绘制尺寸
	_, _, width, height := t.chart.GetInnerRect()
	if width < 20 {
		width = 80
	}
	if height < 10 {
		height = 15
	}

	t.chart.SetText(t.drawChart(series, width, height, time.Now()))
}

// updateStatusBar 更新底部状态栏
func (t *TUI) updateStatusBar() {
	if t.testMode || t.status == nil {
		return
	}

	t.statsMu.RLock()
	msg := t.message
	running := 0
	for _, st := range t.statuses {
		if st.Session.Running {
			running++
		}
	}
	t.statsMu.RUnlock()

	text := fmt.Sprintf("[green]运行中 %d[white]  %s", running, helpText)
	if msg != "" {
		text = msg + "  " + text
	}
	t.status.SetText(text)
}

// safeUIUpdate 安全地执行UI更新操作
func (t *TUI) safeUIUpdate(updateFunc func()) {
	defer func() {
		// 应用已经停止时忽略panic
		_ = recover()
	}()
	t.app.QueueUpdateDraw(updateFunc)
}
