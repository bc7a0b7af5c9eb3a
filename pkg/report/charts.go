package report

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/Kevin-Rudy/pingdeck/pkg/core"
	"github.com/Kevin-Rudy/pingdeck/pkg/monitor"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// ErrNoData 没有足够的延迟样本绘制图表
var ErrNoData = errors.New("no latency samples to chart")

// ChartOptions 图表尺寸和标题
type ChartOptions struct {
	Title  string
	Width  int
	Height int
}

// DefaultChartOptions 返回默认图表选项
func DefaultChartOptions() ChartOptions {
	return ChartOptions{
		Title:  "Network Latency",
		Width:  1200,
		Height: 400,
	}
}

// latencySeries 把会话历史中的成功样本转换为时间序列，超时点不参与绘制
func latencySeries(points []core.DataPoint) ([]time.Time, []float64) {
	var xs []time.Time
	var ys []float64
	for _, p := range points {
		if p.Status != core.PointSuccess {
			continue
		}
		xs = append(xs, p.Timestamp)
		ys = append(ys, p.Value)
	}
	return xs, ys
}

// WriteChart 把所有目标的延迟历史渲染为一张PNG
func WriteChart(w io.Writer, statuses []monitor.Status, opts ChartOptions) error {
	var series []chart.Series
	for _, st := range statuses {
		xs, ys := latencySeries(st.Session.History)
		// 至少两个点才能画出折线
		if len(xs) < 2 {
			continue
		}
		series = append(series, chart.TimeSeries{
			Name: st.Endpoint.Name,
			Style: chart.Style{
				StrokeColor: chart.GetDefaultColor(len(series)),
				StrokeWidth: 2,
			},
			XValues: xs,
			YValues: ys,
		})
	}
	if len(series) == 0 {
		return ErrNoData
	}

	graph := chart.Chart{
		Title: opts.Title,
		TitleStyle: chart.Style{
			FontSize: 16,
		},
		Background: chart.Style{
			Padding: chart.Box{
				Top:    20,
				Left:   20,
				Right:  20,
				Bottom: 20,
			},
		},
		Width:  opts.Width,
		Height: opts.Height,
		XAxis: chart.XAxis{
			Name: "Time",
			NameStyle: chart.Style{
				FontSize: 12,
			},
			Style: chart.Style{
				StrokeColor: drawing.ColorBlack,
				FontSize:    10,
			},
			ValueFormatter: chart.TimeMinuteValueFormatter,
		},
		YAxis: chart.YAxis{
			Name: "Latency (ms)",
			NameStyle: chart.Style{
				FontSize: 12,
			},
			Style: chart.Style{
				StrokeColor: drawing.ColorBlack,
				FontSize:    10,
			},
			GridMajorStyle: chart.Style{
				StrokeColor: drawing.Color{R: 200, G: 200, B: 200, A: 255},
				StrokeWidth: 1.0,
			},
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	return graph.Render(chart.PNG, w)
}

// WriteChartFile 把图表写入文件，必要时创建目录
func WriteChartFile(path string, statuses []monitor.Status, opts ChartOptions) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteChart(file, statuses, opts); err != nil {
		file.Close()
		os.Remove(path)
		return err
	}
	return file.Close()
}
