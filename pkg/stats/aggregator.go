// Package stats 实现延迟样本的统计聚合
// 提供纯函数Compute和增量更新的Aggregator，两者对相同输入给出相同结果
package stats

import (
	"encoding/json"
	"math"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// 直方图以微秒记录，覆盖1µs到60s，3位有效数字
const (
	histLowestUs  = 1
	histHighestUs = 60_000_000
	histSigFigs   = 3
)

// Snapshot 表示某一时刻的统计快照
// 没有样本时Avg/Min/Max/StdDev/P50/P90/P99/Last均为NaN
type Snapshot struct {
	Samples  int     `json:"samples"`  // 成功样本数
	Timeouts int     `json:"timeouts"` // 超时次数
	Avg      float64 `json:"avg"`      // 平均延迟(ms)
	Min      float64 `json:"min"`      // 最小延迟(ms)
	Max      float64 `json:"max"`      // 最大延迟(ms)
	Loss     float64 `json:"loss"`     // 丢包率(%)，无任何探测时为0
	StdDev   float64 `json:"stddev"`   // 样本标准差(ms)，少于2个样本时为NaN
	P50      float64 `json:"p50"`
	P90      float64 `json:"p90"`
	P99      float64 `json:"p99"`
	Last     float64 `json:"last"` // 最近一次样本(ms)
}

// MarshalJSON 缺失的延迟值（NaN）输出为null
func (s Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Samples  int      `json:"samples"`
		Timeouts int      `json:"timeouts"`
		Avg      *float64 `json:"avg"`
		Min      *float64 `json:"min"`
		Max      *float64 `json:"max"`
		Loss     float64  `json:"loss"`
		StdDev   *float64 `json:"stddev"`
		P50      *float64 `json:"p50"`
		P90      *float64 `json:"p90"`
		P99      *float64 `json:"p99"`
		Last     *float64 `json:"last"`
	}{
		Samples:  s.Samples,
		Timeouts: s.Timeouts,
		Avg:      optional(s.Avg),
		Min:      optional(s.Min),
		Max:      optional(s.Max),
		Loss:     s.Loss,
		StdDev:   optional(s.StdDev),
		P50:      optional(s.P50),
		P90:      optional(s.P90),
		P99:      optional(s.P99),
		Last:     optional(s.Last),
	})
}

func optional(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// Attempts 返回探测总次数（样本+超时）
func (s Snapshot) Attempts() int {
	return s.Samples + s.Timeouts
}

// HasLatency 判断快照中是否存在延迟数据
func (s Snapshot) HasLatency() bool {
	return s.Samples > 0
}

// Aggregator 增量维护统计累加器
// 非并发安全，由调用方（Session）负责串行化
type Aggregator struct {
	count    int
	timeouts int
	sum      float64
	min      float64
	max      float64
	last     float64

	// Welford's Online Algorithm 所需的累加器
	welfordMean float64
	welfordM2   float64

	hist *hdrhistogram.Histogram
}

// NewAggregator 创建一个空的聚合器
func NewAggregator() *Aggregator {
	a := &Aggregator{
		hist: hdrhistogram.New(histLowestUs, histHighestUs, histSigFigs),
	}
	a.Reset()
	return a
}

// Reset 清空所有累加器
func (a *Aggregator) Reset() {
	a.count = 0
	a.timeouts = 0
	a.sum = 0
	a.min = math.Inf(1)
	a.max = math.Inf(-1)
	a.last = math.NaN()
	a.welfordMean = 0
	a.welfordM2 = 0
	a.hist.Reset()
}

// AddSample 记录一次成功的延迟样本(ms)
// NaN或负值按超时处理
func (a *Aggregator) AddSample(latencyMs float64) {
	if math.IsNaN(latencyMs) || math.IsInf(latencyMs, 0) || latencyMs < 0 {
		a.AddTimeout()
		return
	}

	a.count++
	a.sum += latencyMs
	a.last = latencyMs
	if latencyMs < a.min {
		a.min = latencyMs
	}
	if latencyMs > a.max {
		a.max = latencyMs
	}

	delta := latencyMs - a.welfordMean
	a.welfordMean += delta / float64(a.count)
	a.welfordM2 += delta * (latencyMs - a.welfordMean)

	us := int64(math.Round(latencyMs * 1000))
	if us < a.hist.LowestTrackableValue() {
		us = a.hist.LowestTrackableValue()
	}
	if us > a.hist.HighestTrackableValue() {
		us = a.hist.HighestTrackableValue()
	}
	_ = a.hist.RecordValue(us)
}

// AddTimeout 记录一次超时
func (a *Aggregator) AddTimeout() {
	a.timeouts++
}

// Snapshot 根据当前累加器生成统计快照
func (a *Aggregator) Snapshot() Snapshot {
	s := Snapshot{
		Samples:  a.count,
		Timeouts: a.timeouts,
		Avg:      math.NaN(),
		Min:      math.NaN(),
		Max:      math.NaN(),
		StdDev:   math.NaN(),
		P50:      math.NaN(),
		P90:      math.NaN(),
		P99:      math.NaN(),
		Last:     a.last,
	}

	if total := a.count + a.timeouts; total > 0 {
		s.Loss = float64(a.timeouts) / float64(total) * 100
	}

	if a.count == 0 {
		return s
	}

	// 浮点累加误差可能让均值略微越出[min, max]
	s.Avg = math.Min(math.Max(a.sum/float64(a.count), a.min), a.max)
	s.Min = a.min
	s.Max = a.max
	if a.count > 1 {
		s.StdDev = math.Sqrt(a.welfordM2 / float64(a.count-1))
	}
	s.P50 = float64(a.hist.ValueAtQuantile(50)) / 1000
	s.P90 = float64(a.hist.ValueAtQuantile(90)) / 1000
	s.P99 = float64(a.hist.ValueAtQuantile(99)) / 1000

	return s
}

// Compute 由完整样本集和超时次数计算统计快照（纯函数）
func Compute(samples []float64, timeouts int) Snapshot {
	a := NewAggregator()
	for _, v := range samples {
		a.AddSample(v)
	}
	for i := 0; i < timeouts; i++ {
		a.AddTimeout()
	}
	return a.Snapshot()
}
