package stats

import (
	"encoding/json"
	"math"
	"math/rand"
	"testing"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

// TestComputeEmpty 测试没有样本时延迟字段缺省、丢包率为0
func TestComputeEmpty(t *testing.T) {
	s := Compute(nil, 0)

	if !math.IsNaN(s.Avg) || !math.IsNaN(s.Min) || !math.IsNaN(s.Max) {
		t.Errorf("expected absent avg/min/max, got %v/%v/%v", s.Avg, s.Min, s.Max)
	}
	if s.Loss != 0 {
		t.Errorf("expected loss 0, got %v", s.Loss)
	}
	if s.HasLatency() {
		t.Error("empty snapshot should not report latency")
	}
}

// TestComputeOnlyTimeouts 测试只有超时时延迟字段仍然缺省
func TestComputeOnlyTimeouts(t *testing.T) {
	s := Compute(nil, 4)

	if !math.IsNaN(s.Avg) || !math.IsNaN(s.Min) || !math.IsNaN(s.Max) {
		t.Errorf("expected absent avg/min/max with only timeouts, got %v/%v/%v", s.Avg, s.Min, s.Max)
	}
	if s.Loss != 100 {
		t.Errorf("expected loss 100, got %v", s.Loss)
	}
	if s.Attempts() != 4 {
		t.Errorf("expected 4 attempts, got %d", s.Attempts())
	}
}

// TestComputeScenario 测试样本[20,25,30]加一次超时
func TestComputeScenario(t *testing.T) {
	s := Compute([]float64{20, 25, 30}, 1)

	if s.Avg != 25.0 {
		t.Errorf("expected avg 25.0, got %v", s.Avg)
	}
	if s.Min != 20 || s.Max != 30 {
		t.Errorf("expected min 20 max 30, got %v %v", s.Min, s.Max)
	}
	if s.Loss != 25.0 {
		t.Errorf("expected loss 25.0, got %v", s.Loss)
	}
	if !approx(s.StdDev, 5) {
		t.Errorf("expected stddev 5, got %v", s.StdDev)
	}
	if s.Last != 30 {
		t.Errorf("expected last 30, got %v", s.Last)
	}
}

// TestComputeProperties 随机样本集上的不变量：loss公式与min<=avg<=max
func TestComputeProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 200; i++ {
		n := 1 + rng.Intn(50)
		timeouts := rng.Intn(20)
		samples := make([]float64, n)
		for j := range samples {
			samples[j] = rng.Float64() * 500
		}

		s := Compute(samples, timeouts)

		wantLoss := 100 * float64(timeouts) / float64(n+timeouts)
		if !approx(s.Loss, wantLoss) {
			t.Fatalf("loss mismatch: got %v want %v", s.Loss, wantLoss)
		}
		if s.Min > s.Avg || s.Avg > s.Max {
			t.Fatalf("expected min <= avg <= max, got %v %v %v", s.Min, s.Avg, s.Max)
		}
		if s.Samples != n || s.Timeouts != timeouts {
			t.Fatalf("count mismatch: %d/%d", s.Samples, s.Timeouts)
		}
	}
}

// TestComputeConstantSamples 相同延迟的样本集均值必须等于该值
func TestComputeConstantSamples(t *testing.T) {
	values := []float64{0.1, 0.7, 1.1, 2.3, 12.9, 33.3, 99.99}
	for _, v := range values {
		for n := 1; n <= 12; n++ {
			samples := make([]float64, n)
			for i := range samples {
				samples[i] = v
			}
			s := Compute(samples, 0)
			if s.Min > s.Avg || s.Avg > s.Max {
				t.Fatalf("%v x%d: expected min <= avg <= max, got %v %v %v", v, n, s.Min, s.Avg, s.Max)
			}
			if s.Avg != v {
				t.Fatalf("%v x%d: expected avg %v, got %v", v, n, v, s.Avg)
			}
		}
	}
}

// TestSnapshotJSON 缺失值序列化为null
func TestSnapshotJSON(t *testing.T) {
	data, err := json.Marshal(Compute(nil, 2))
	if err != nil {
		t.Fatalf("marshal empty snapshot: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["avg"] != nil || decoded["stddev"] != nil {
		t.Errorf("expected null latency fields, got %s", data)
	}
	if decoded["loss"] != float64(100) {
		t.Errorf("expected loss 100, got %v", decoded["loss"])
	}

	data, err = json.Marshal(Compute([]float64{10}, 0))
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["avg"] != float64(10) || decoded["stddev"] != nil {
		t.Errorf("unexpected single-sample JSON %s", data)
	}
}

// TestAggregatorMatchesCompute 测试增量结果与纯函数一致
func TestAggregatorMatchesCompute(t *testing.T) {
	values := []float64{12.5, 8.7, 45.2, 15.5, 32.1}
	a := NewAggregator()

	var seen []float64
	timeouts := 0
	for i, v := range values {
		a.AddSample(v)
		seen = append(seen, v)
		if i%2 == 0 {
			a.AddTimeout()
			timeouts++
		}

		got := a.Snapshot()
		want := Compute(seen, timeouts)
		if !approx(got.Avg, want.Avg) || got.Min != want.Min || got.Max != want.Max || !approx(got.Loss, want.Loss) {
			t.Fatalf("step %d: incremental %+v != computed %+v", i, got, want)
		}
	}
}

// TestAggregatorReset 测试重置后回到空状态
func TestAggregatorReset(t *testing.T) {
	a := NewAggregator()
	a.AddSample(10)
	a.AddTimeout()
	a.Reset()

	s := a.Snapshot()
	if s.Samples != 0 || s.Timeouts != 0 || s.Loss != 0 || !math.IsNaN(s.Avg) || !math.IsNaN(s.Last) {
		t.Errorf("expected empty snapshot after reset, got %+v", s)
	}
	if !math.IsNaN(s.P50) {
		t.Errorf("expected absent percentile after reset, got %v", s.P50)
	}
}

// TestAggregatorInvalidSample 测试NaN样本按超时计
func TestAggregatorInvalidSample(t *testing.T) {
	a := NewAggregator()
	a.AddSample(math.NaN())
	a.AddSample(-1)

	s := a.Snapshot()
	if s.Samples != 0 || s.Timeouts != 2 {
		t.Errorf("expected 0 samples 2 timeouts, got %d/%d", s.Samples, s.Timeouts)
	}
}

// TestAggregatorPercentiles 测试直方图分位数
func TestAggregatorPercentiles(t *testing.T) {
	a := NewAggregator()
	for i := 1; i <= 100; i++ {
		a.AddSample(float64(i))
	}

	s := a.Snapshot()
	if math.Abs(s.P50-50) > 0.5 {
		t.Errorf("expected p50 near 50, got %v", s.P50)
	}
	if math.Abs(s.P99-99) > 0.5 {
		t.Errorf("expected p99 near 99, got %v", s.P99)
	}
	if s.P50 > s.P90 || s.P90 > s.P99 {
		t.Errorf("percentiles should be ordered: %v %v %v", s.P50, s.P90, s.P99)
	}
}

// BenchmarkAggregatorAddSample 基准测试增量更新性能
func BenchmarkAggregatorAddSample(b *testing.B) {
	a := NewAggregator()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		a.AddSample(25.5)
	}
}
