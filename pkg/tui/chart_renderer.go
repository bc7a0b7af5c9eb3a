// Package tui 图表渲染模块
package tui

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/Kevin-Rudy/pingdeck/pkg/core"
)

// brailleCell 定义盲文字符的cell结构
type brailleCell struct {
	char  int
	color string
}

// chartSeries 单个目标的折线
type chartSeries struct {
	id     string
	color  string
	points []core.DataPoint
}

// 盲文点阵的映射关系 (2x4 grid)
var brailleDotMap = [4][2]int{
	{0b00000001, 0b00001000}, // (y:0, x:0), (y:0, x:1)
	{0b00000010, 0b00010000}, // (y:1, x:0), (y:1, x:1)
	{0b00000100, 0b00100000}, // (y:2, x:0), (y:2, x:1)
	{0b01000000, 0b10000000}, // (y:3, x:0), (y:3, x:1)
}

// validateChartSize 验证图表尺寸是否合理
func (t *TUI) validateChartSize(width, height int) string {
	if height < t.tuiConfig.MinChartHeight || width < t.tuiConfig.MinChartWidth {
		return "终端尺寸过小"
	}
	if width > t.tuiConfig.MaxChartSize || height > t.tuiConfig.MaxChartSize {
		return "终端尺寸过大"
	}
	return ""
}

// calculateValueRange 计算窗口内数据的值范围
func (t *TUI) calculateValueRange(series []chartSeries, windowStart, windowEnd time.Time) (minVal, maxVal, valueRange float64, errMsg string) {
	found := false
	for _, s := range series {
		for _, point := range s.points {
			if point.Timestamp.Before(windowStart) || point.Timestamp.After(windowEnd) {
				continue
			}
			if math.IsNaN(point.Value) || math.IsInf(point.Value, 0) {
				continue
			}
			if !found {
				minVal, maxVal = point.Value, point.Value
				found = true
				continue
			}
			minVal = math.Min(minVal, point.Value)
			maxVal = math.Max(maxVal, point.Value)
		}
	}

	if !found {
		return 0, 0, 0, "当前窗口内没有有效数据"
	}

	// 如果所有值都一样，特殊处理
	if maxVal == minVal {
		maxVal++
		minVal--
	}

	// 采用缓冲算法
	maxVal = maxVal + maxVal*t.tuiConfig.ValueBufferRatio
	minVal = minVal - minVal*t.tuiConfig.ValueBufferRatio
	if minVal < 0 {
		minVal = 0
	}
	if maxVal < t.tuiConfig.DefaultCeiling {
		maxVal = t.tuiConfig.DefaultCeiling
	}

	valueRange = maxVal - minVal
	if valueRange == 0 {
		valueRange = 1
	}

	return minVal, maxVal, valueRange, ""
}

// collectSeries 收集需要绘制的折线，selected为空时收集全部目标
// 调用方需持有statsMu
func (t *TUI) collectSeries(selected string) []chartSeries {
	var series []chartSeries
	for _, st := range t.statuses {
		id := st.Endpoint.ID
		if selected != "" && id != selected {
			continue
		}
		if len(st.Session.History) == 0 {
			continue
		}
		series = append(series, chartSeries{id: id, color: t.getTargetColor(id), points: st.Session.History})
	}
	return series
}

// drawChart 基于时间戳在盲文画布上绘制所有折线
func (t *TUI) drawChart(series []chartSeries, width, height int, now time.Time) string {
	if len(series) == 0 {
		return "没有数据，按Enter开始测量"
	}

	// 检查图表尺寸是否合理
	if sizeErr := t.validateChartSize(width, height); sizeErr != "" {
		return sizeErr
	}

	windowStart, windowEnd := t.getTimeWindow(now)

	minVal, maxVal, valueRange, err := t.calculateValueRange(series, windowStart, windowEnd)
	if err != "" {
		return err
	}

	// 动态计算Y轴标签宽度
	topLabel := formatLatency(maxVal)
	bottomLabel := formatLatency(minVal)
	maxLabelLen := len(topLabel)
	if len(bottomLabel) > maxLabelLen {
		maxLabelLen = len(bottomLabel)
	}
	yAxisLabelWidth := maxLabelLen + 2 // +2 为│分隔符和右侧空格留出缓冲

	chartBodyHeight := height - 2 // 为X轴和时间戳留出2行空间
	chartWidth := width - yAxisLabelWidth
	if chartBodyHeight <= 0 || chartWidth <= 0 {
		return "可绘制区域过小"
	}

	canvas := make([][]brailleCell, chartWidth)
	for i := range canvas {
		canvas[i] = make([]brailleCell, chartBodyHeight)
	}

	for _, s := range series {
		color := s.color
		if color == "" {
			color = "[white]"
		}

		lastX, lastY := -1, -1
		for _, point := range s.points {
			if point.Timestamp.Before(windowStart) || point.Timestamp.After(windowEnd) {
				continue
			}

			// 高分辨率坐标
			currX := timestampToX(point.Timestamp, windowStart, windowEnd, chartWidth*2)
			if currX < 0 || currX >= chartWidth*2 {
				continue
			}

			var currY int
			if point.Status == core.PointTimeout || math.IsNaN(point.Value) || math.IsInf(point.Value, 0) {
				// 超时：画到图表顶部（天花板）
				currY = 0
			} else {
				normalized := (point.Value - minVal) / valueRange
				currY = int((1.0 - normalized) * float64(chartBodyHeight*4-1))
			}

			if currY < 0 {
				currY = 0
			} else if currY >= chartBodyHeight*4 {
				currY = chartBodyHeight*4 - 1
			}

			if lastX != -1 {
				drawBrailleLine(canvas, lastX, lastY, currX, currY, color)
			} else {
				plotBraille(canvas, currX, currY, color)
			}
			lastX, lastY = currX, currY
		}
	}

	var lines []string

	yAxisLabelCount := 5
	if chartBodyHeight < yAxisLabelCount {
		yAxisLabelCount = chartBodyHeight
	}

	// 预先计算所有Y轴标签及其对应的行号
	yAxisLabels := make(map[int]string)
	if yAxisLabelCount > 1 {
		for i := 0; i < yAxisLabelCount; i++ {
			normalized := float64(i) / float64(yAxisLabelCount-1)
			value := maxVal - normalized*valueRange
			pixelRow := int(normalized * float64(chartBodyHeight-1))
			yAxisLabels[pixelRow] = formatLatency(value)
		}
	}

	for i := 0; i < chartBodyHeight; i++ {
		var line strings.Builder
		fmt.Fprintf(&line, "[gray]%*s[white] [gray]│[white]", yAxisLabelWidth-2, yAxisLabels[i])

		for j := 0; j < chartWidth; j++ {
			cell := canvas[j][i]
			if cell.char == 0 {
				line.WriteByte(' ')
			} else {
				line.WriteString(cell.color + string(rune(0x2800+cell.char)) + "[white]")
			}
		}
		lines = append(lines, line.String())
	}

	xAxisLine := fmt.Sprintf("%-*s└%s", yAxisLabelWidth-1, "", strings.Repeat("─", chartWidth))
	lines = append(lines, "[gray]"+xAxisLine+"[white]")

	startTimeStr := windowStart.Format("15:04:05")
	endTimeStr := windowEnd.Format("15:04:05")
	spaceCount := chartWidth - len(startTimeStr) - len(endTimeStr)
	if spaceCount < 1 {
		spaceCount = 1
	}
	timeLine := fmt.Sprintf("%-*s%s%*s%s", yAxisLabelWidth, "", startTimeStr, spaceCount, "", endTimeStr)
	lines = append(lines, "[gray]"+timeLine+"[white]")

	// 保证X轴总是可见
	if len(lines) > height {
		lines = lines[:height]
	}

	return strings.Join(lines, "\n")
}

// plotBraille 在高分辨率坐标上点亮一个子像素
func plotBraille(canvas [][]brailleCell, x, y int, color string) {
	if len(canvas) == 0 {
		return
	}
	canvasX, canvasY := x/2, y/4
	if x < 0 || y < 0 || canvasX >= len(canvas) || canvasY >= len(canvas[0]) {
		return
	}
	canvas[canvasX][canvasY].char |= brailleDotMap[y%4][x%2]
	canvas[canvasX][canvasY].color = color
}

// drawBrailleLine 使用布雷森汉姆算法在盲文画布上绘制线段
func drawBrailleLine(canvas [][]brailleCell, x1, y1, x2, y2 int, color string) {
	dx := abs(x2 - x1)
	dy := abs(y2 - y1)
	sx := 1
	if x1 > x2 {
		sx = -1
	}
	sy := 1
	if y1 > y2 {
		sy = -1
	}
	err := dx - dy

	x, y := x1, y1
	for {
		plotBraille(canvas, x, y, color)

		if x == x2 && y == y2 {
			break
		}

		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x += sx
		}
		if e2 < dx {
			err += dx
			y += sy
		}
	}
}
