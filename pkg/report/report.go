// Package report 生成测量结果的文本汇总和图表
package report

import (
	"fmt"
	"io"
	"math"
	"text/tabwriter"
	"time"

	"github.com/Kevin-Rudy/pingdeck/pkg/core"
	"github.com/Kevin-Rudy/pingdeck/pkg/monitor"
	"github.com/Kevin-Rudy/pingdeck/pkg/store"
)

// WriteSummary 以对齐的表格输出每个目标的统计
func WriteSummary(out io.Writer, statuses []monitor.Status, sampleCount int) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tADDRESS\tSTATE\tSENT\tLOSS\tAVG\tMIN\tMAX\tSTDDEV\tP99")
	for _, st := range statuses {
		s := st.Session.Stats
		state := st.Session.State().String()
		if st.Session.Stopping {
			state = "stopping"
		}
		name := st.Endpoint.Name
		if st.Endpoint.Favorite {
			name = "*" + name
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			st.Endpoint.ID, name, st.Endpoint.Address, state,
			s.Attempts(), sampleCount, formatLoss(s.Attempts(), s.Loss),
			formatMs(s.Avg), formatMs(s.Min), formatMs(s.Max), formatMs(s.StdDev), formatMs(s.P99))
	}
	return w.Flush()
}

// WriteEndpoints 输出目标列表
func WriteEndpoints(out io.Writer, endpoints []core.Endpoint) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tADDRESS\tKIND")
	for _, e := range endpoints {
		kind := "builtin"
		if e.Custom {
			kind = "custom"
		}
		name := e.Name
		if e.Favorite {
			name = "*" + name
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.ID, name, e.Address, kind)
	}
	return w.Flush()
}

// WriteRuns 输出历史测量记录，最新的在前
func WriteRuns(out io.Writer, runs []store.RunRecord) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ENDPOINT\tSTARTED\tDURATION\tRESULT\tSAMPLES\tTIMEOUTS\tLOSS\tAVG\tMIN\tMAX")
	for _, r := range runs {
		result := "complete"
		if r.Stopped {
			result = "stopped"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\t%s\t%s\t%s\n",
			r.EndpointID, r.StartedAt.Local().Format(time.DateTime),
			r.EndedAt.Sub(r.StartedAt).Round(time.Second), result,
			r.Samples, r.Timeouts, formatLoss(r.Samples+r.Timeouts, r.LossPct),
			formatMs(r.AvgMs), formatMs(r.MinMs), formatMs(r.MaxMs))
	}
	return w.Flush()
}

func formatMs(v float64) string {
	if math.IsNaN(v) {
		return "-"
	}
	return fmt.Sprintf("%.2fms", v)
}

func formatLoss(attempts int, loss float64) string {
	if attempts == 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", loss)
}
