package tui

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Kevin-Rudy/pingdeck/pkg/core"
	"github.com/Kevin-Rudy/pingdeck/pkg/monitor"
	"github.com/Kevin-Rudy/pingdeck/pkg/registry"
	"github.com/Kevin-Rudy/pingdeck/pkg/router"
	"github.com/Kevin-Rudy/pingdeck/pkg/session"
	"github.com/Kevin-Rudy/pingdeck/pkg/stats"
)

// mockController 模拟监控器，用于测试
type mockController struct {
	mu        sync.Mutex
	statuses  []monitor.Status
	toggled   []string
	stopAll   int
	removed   []string
	removeErr error
	added     []core.Endpoint
	toggleErr error
	router    *router.Router
}

func newMockController(endpoints ...core.Endpoint) *mockController {
	m := &mockController{router: router.New(nil)}
	for _, e := range endpoints {
		m.statuses = append(m.statuses, monitor.Status{
			Endpoint: e,
			Session:  session.New(e.ID, 10).Snapshot(),
		})
		m.router.Register(e.ID, router.HandlerFunc(func(core.SampleEvent) bool { return true }))
	}
	return m
}

func (m *mockController) Statuses() []monitor.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]monitor.Status, len(m.statuses))
	copy(out, m.statuses)
	return out
}

func (m *mockController) SampleCount() int { return 20 }

func (m *mockController) Toggle(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.toggleErr != nil {
		return false, m.toggleErr
	}
	m.toggled = append(m.toggled, id)
	for i := range m.statuses {
		if m.statuses[i].Endpoint.ID == id {
			m.statuses[i].Session.Running = !m.statuses[i].Session.Running
		}
	}
	return true, nil
}

func (m *mockController) StopAll(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopAll++
	return nil
}

func (m *mockController) Add(name, address string) (core.Endpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := core.Endpoint{ID: "custom-" + name, Name: name, Address: address, Custom: true}
	m.added = append(m.added, e)
	m.statuses = append(m.statuses, monitor.Status{Endpoint: e})
	return e, nil
}

func (m *mockController) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.removeErr != nil {
		return m.removeErr
	}
	m.removed = append(m.removed, id)
	for i := range m.statuses {
		if m.statuses[i].Endpoint.ID == id {
			m.statuses = append(m.statuses[:i], m.statuses[i+1:]...)
			break
		}
	}
	return nil
}

func (m *mockController) ToggleFavorite(id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.statuses {
		if m.statuses[i].Endpoint.ID == id {
			m.statuses[i].Endpoint.Favorite = !m.statuses[i].Endpoint.Favorite
			return m.statuses[i].Endpoint.Favorite, nil
		}
	}
	return false, registry.ErrNotFound
}

func (m *mockController) Subscribe(id string) *router.Subscription {
	return m.router.Subscribe(id)
}

func twoEndpoints() []core.Endpoint {
	return []core.Endpoint{
		{ID: "us-e", Name: "US East", Address: "1.1.1.1"},
		{ID: "eu", Name: "Europe", Address: "8.8.8.8"},
	}
}

// TestNewTUI 测试TUI实例创建
func TestNewTUI(t *testing.T) {
	tuiConfig := DefaultConfig()
	tui := NewTUIForTest(newMockController(), tuiConfig)

	if tui == nil {
		t.Fatal("NewTUIForTest should return a valid TUI instance")
	}
	if !tui.testMode {
		t.Error("TUI should be in test mode")
	}
	if tui.selectedRow != -1 {
		t.Errorf("Expected initial selection -1, got %d", tui.selectedRow)
	}
	if tui.tuiConfig.MaxHistorySize != tuiConfig.MaxHistorySize {
		t.Errorf("Expected MaxHistorySize=%d, got %d", tuiConfig.MaxHistorySize, tui.tuiConfig.MaxHistorySize)
	}

	if NewTUIForTest(newMockController(), nil).tuiConfig == nil {
		t.Error("nil config should fall back to defaults")
	}
}

func TestRefreshStatusesKeepsColors(t *testing.T) {
	ctrl := newMockController(twoEndpoints()...)
	tui := NewTUIForTest(ctrl, nil)
	tui.refreshStatuses()

	if len(tui.identifiers) != 2 || tui.identifiers[0] != "us-e" {
		t.Fatalf("unexpected identifiers %v", tui.identifiers)
	}
	euColor := tui.getTargetColor("eu")

	// 删除第一个目标后颜色不应改变
	if err := ctrl.Remove("us-e"); err != nil {
		t.Fatal(err)
	}
	tui.refreshStatuses()
	if got := tui.getTargetColor("eu"); got != euColor {
		t.Errorf("color changed from %s to %s", euColor, got)
	}
	if got := tui.getTargetColor("missing"); got != "[white]" {
		t.Errorf("unknown target should be white, got %s", got)
	}
}

func TestRefreshClampsSelection(t *testing.T) {
	ctrl := newMockController(twoEndpoints()...)
	tui := NewTUIForTest(ctrl, nil)
	tui.refreshStatuses()
	tui.selectedRow = 1

	_ = ctrl.Remove("eu")
	tui.refreshStatuses()
	if tui.selectedRow != 0 {
		t.Errorf("Expected selection clamped to 0, got %d", tui.selectedRow)
	}
}

// TestNavigation 测试导航逻辑
func TestNavigation(t *testing.T) {
	tui := NewTUIForTest(newMockController(twoEndpoints()...), nil)

	// 没有目标时导航不应改变状态
	tui.navigateDown()
	if tui.selectedRow != -1 {
		t.Errorf("navigation without targets should be a no-op, got %d", tui.selectedRow)
	}

	tui.refreshStatuses()

	steps := []struct {
		down bool
		want int
	}{
		{true, 0}, {true, 1}, {true, -1}, // 向下循环回全选
		{false, 1}, {false, 0}, {false, -1}, // 向上循环回全选
	}
	for i, s := range steps {
		if s.down {
			tui.navigateDown()
		} else {
			tui.navigateUp()
		}
		if tui.selectedRow != s.want {
			t.Errorf("step %d: expected %d, got %d", i, s.want, tui.selectedRow)
		}
	}
}

func TestToggleSelected(t *testing.T) {
	ctrl := newMockController(twoEndpoints()...)
	tui := NewTUIForTest(ctrl, nil)
	tui.refreshStatuses()

	// 全选状态下不发送命令
	tui.toggleSelected()
	if len(ctrl.toggled) != 0 {
		t.Fatalf("toggle without selection should not reach the controller")
	}
	if !strings.Contains(tui.Message(), "选择") {
		t.Errorf("expected a selection hint, got %q", tui.Message())
	}

	tui.navigateDown()
	tui.navigateDown()
	tui.toggleSelected()
	if len(ctrl.toggled) != 1 || ctrl.toggled[0] != "eu" {
		t.Fatalf("expected eu toggled, got %v", ctrl.toggled)
	}
	if !strings.Contains(tui.Message(), "开始测量") {
		t.Errorf("unexpected message %q", tui.Message())
	}

	st, _ := tui.statusFor("eu")
	if !st.Session.Running {
		t.Error("statuses should be refreshed after toggle")
	}

	tui.toggleSelected()
	if !strings.Contains(tui.Message(), "正在停止") {
		t.Errorf("unexpected message %q", tui.Message())
	}

	ctrl.toggleErr = errors.New("engine down")
	tui.toggleSelected()
	if !strings.Contains(tui.Message(), "engine down") {
		t.Errorf("expected error in message, got %q", tui.Message())
	}
}

func TestToggleFavoriteKeepsSelection(t *testing.T) {
	ctrl := newMockController(twoEndpoints()...)
	tui := NewTUIForTest(ctrl, nil)
	tui.refreshStatuses()
	tui.navigateDown()
	tui.navigateDown() // eu

	tui.toggleFavoriteSelected()
	st, _ := tui.statusFor("eu")
	if !st.Endpoint.Favorite {
		t.Fatal("eu should be a favorite")
	}
	if tui.selectedID() != "eu" {
		t.Errorf("selection moved to %q", tui.selectedID())
	}
}

func TestStopAll(t *testing.T) {
	ctrl := newMockController(twoEndpoints()...)
	tui := NewTUIForTest(ctrl, nil)
	tui.stopAll()
	if ctrl.stopAll != 1 {
		t.Errorf("expected one StopAll call, got %d", ctrl.stopAll)
	}
}

func TestRemoveSelected(t *testing.T) {
	ctrl := newMockController(twoEndpoints()...)
	tui := NewTUIForTest(ctrl, nil)
	tui.refreshStatuses()

	if err := tui.removeSelected(); err != nil || len(ctrl.removed) != 0 {
		t.Fatalf("remove without selection should be a no-op")
	}

	tui.navigateDown()
	ctrl.removeErr = registry.ErrBuiltin
	if err := tui.removeSelected(); !errors.Is(err, registry.ErrBuiltin) {
		t.Fatalf("expected ErrBuiltin, got %v", err)
	}
	if !strings.Contains(tui.Message(), "内置") {
		t.Errorf("unexpected message %q", tui.Message())
	}

	ctrl.removeErr = registry.ErrRunning
	_ = tui.removeSelected()
	if !strings.Contains(tui.Message(), "停止") {
		t.Errorf("unexpected message %q", tui.Message())
	}

	ctrl.removeErr = nil
	if err := tui.removeSelected(); err != nil {
		t.Fatal(err)
	}
	if len(tui.identifiers) != 1 || tui.identifiers[0] != "eu" {
		t.Errorf("unexpected identifiers after removal %v", tui.identifiers)
	}
}

func TestSubmitAdd(t *testing.T) {
	ctrl := newMockController(twoEndpoints()...)
	tui := NewTUIForTest(ctrl, nil)
	tui.refreshStatuses()

	if err := tui.submitAdd("  ", "1.2.3.4"); !errors.Is(err, registry.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if err := tui.submitAdd("lab", "bad host!"); !errors.Is(err, registry.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if len(ctrl.added) != 0 {
		t.Fatal("invalid input should not reach the controller")
	}

	if err := tui.submitAdd("lab", "10.0.0.1"); err != nil {
		t.Fatal(err)
	}
	if tui.selectedID() != "custom-lab" {
		t.Errorf("new target should be selected, got %q", tui.selectedID())
	}
}

func TestSummarize(t *testing.T) {
	st := monitor.Status{Endpoint: core.Endpoint{ID: "a", Name: "A"}}
	st.Session.Stats = stats.Compute(nil, 0)

	idle := summarize(st, 20)
	if idle["进度"] != "-" || idle["丢包率"] != "N/A" || idle["平均"] != "N/A" {
		t.Errorf("unexpected idle summary %v", idle)
	}

	st.Session.Running = true
	st.Session.Stats = stats.Compute([]float64{10, 20}, 1)
	running := summarize(st, 20)
	if running["进度"] != "3/20" {
		t.Errorf("expected progress 3/20, got %s", running["进度"])
	}
	if !strings.Contains(running["状态"], "运行") {
		t.Errorf("unexpected state %s", running["状态"])
	}
	if running["平均"] != "15.0ms" || running["最小"] != "10.0ms" || running["最大"] != "20.0ms" {
		t.Errorf("unexpected latency columns %v", running)
	}

	st.Session.Stopping = true
	if !strings.Contains(summarize(st, 20)["状态"], "停止中") {
		t.Error("stopping session should say so")
	}

	for _, col := range summaryColumns {
		if _, ok := running[col]; !ok {
			t.Errorf("missing column %s", col)
		}
	}
}

func TestDisplayName(t *testing.T) {
	if got := displayName(core.Endpoint{Name: "A", Favorite: true}); got != "★ A" {
		t.Errorf("got %q", got)
	}
	if got := displayName(core.Endpoint{Name: "A"}); got != "A" {
		t.Errorf("got %q", got)
	}
}

// TestFormatLatency 测试延迟格式化
func TestFormatLatency(t *testing.T) {
	tests := []struct {
		input    float64
		expected string
	}{
		{math.NaN(), "N/A"},
		{0.5, "500µs"},
		{15.5, "15.5ms"},
		{1500, "1.50s"},
	}
	for _, tt := range tests {
		if got := formatLatency(tt.input); got != tt.expected {
			t.Errorf("formatLatency(%v) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestHandleEventsSetsMessage(t *testing.T) {
	ctrl := newMockController(twoEndpoints()...)
	tui := NewTUIForTest(ctrl, nil)
	tui.refreshStatuses()

	tui.handleEvents([]core.SampleEvent{core.NewSample("eu", 1, 10)})
	if tui.Message() != "" {
		t.Errorf("samples should not produce a message, got %q", tui.Message())
	}

	tui.handleEvents([]core.SampleEvent{core.NewTerminal("eu", core.EventComplete)})
	if !strings.Contains(tui.Message(), "Europe 测量完成") {
		t.Errorf("unexpected message %q", tui.Message())
	}

	tui.handleEvents([]core.SampleEvent{core.NewTerminal("unknown", core.EventStopped)})
	if !strings.Contains(tui.Message(), "unknown 已停止") {
		t.Errorf("unexpected message %q", tui.Message())
	}
}

func TestProcessDataLoop(t *testing.T) {
	ctrl := newMockController(twoEndpoints()...)
	tui := NewTUIForTest(ctrl, NewConfigWithOptions(WithRefreshInterval(10*time.Millisecond)))
	tui.sub = ctrl.Subscribe("")
	defer tui.sub.Unsubscribe()

	go tui.processData()

	ctrl.router.Dispatch(core.NewTerminal("us-e", core.EventStopped))

	deadline := time.After(2 * time.Second)
	for !strings.Contains(tui.Message(), "US East 已停止") {
		select {
		case <-deadline:
			t.Fatalf("message never arrived, got %q", tui.Message())
		case <-time.After(5 * time.Millisecond):
		}
	}

	tui.Stop()
	tui.Stop() // 重复调用安全
	select {
	case <-tui.doneChan:
	case <-time.After(time.Second):
		t.Fatal("processData did not exit")
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}

	bad := []*Config{
		NewConfigWithOptions(WithRefreshInterval(0)),
		NewConfigWithOptions(WithRefreshInterval(time.Millisecond)),
		NewConfigWithOptions(WithSampleInterval(0)),
		NewConfigWithOptions(WithChartSize(0, 5)),
		NewConfigWithOptions(WithHistorySize(5)),
		NewConfigWithOptions(WithHistorySize(5000)),
		NewConfigWithOptions(WithValueBufferRatio(-1)),
		NewConfigWithOptions(WithDefaultCeiling(-1)),
		NewConfigWithOptions(WithNavigationRate(0, 1)),
	}
	for i, c := range bad {
		if err := c.Validate(); err == nil {
			t.Errorf("config %d should be invalid", i)
		}
	}

	c := NewConfigWithOptions(WithHistorySize(60), WithSampleInterval(500*time.Millisecond))
	if c.WindowDuration() != 30*time.Second {
		t.Errorf("unexpected window %v", c.WindowDuration())
	}
}

func TestTimeWindow(t *testing.T) {
	tui := NewTUIForTest(newMockController(), NewConfigWithOptions(WithHistorySize(10)))
	start := tui.startTime

	// 填充阶段固定从启动时间开始
	s, e := tui.getTimeWindow(start.Add(3 * time.Second))
	if !s.Equal(start) || !e.Equal(start.Add(10*time.Second)) {
		t.Errorf("unexpected fill window %v-%v", s, e)
	}

	now := start.Add(time.Minute)
	s, e = tui.getTimeWindow(now)
	if !e.Equal(now) || !s.Equal(now.Add(-10*time.Second)) {
		t.Errorf("unexpected rolling window %v-%v", s, e)
	}

	if x := timestampToX(start.Add(5*time.Second), start, start.Add(10*time.Second), 100); x != 50 {
		t.Errorf("expected x=50, got %d", x)
	}
	if x := timestampToX(start.Add(-time.Second), start, start.Add(10*time.Second), 100); x != -1 {
		t.Errorf("expected -1 for points before the window, got %d", x)
	}
}

func TestDrawChart(t *testing.T) {
	tui := NewTUIForTest(newMockController(), NewConfigWithOptions(WithHistorySize(10)))
	now := tui.startTime.Add(5 * time.Second)

	if got := tui.drawChart(nil, 80, 15, now); !strings.Contains(got, "没有数据") {
		t.Errorf("expected empty chart message, got %q", got)
	}

	series := []chartSeries{{
		id:    "a",
		color: "[green]",
		points: []core.DataPoint{
			{Timestamp: tui.startTime.Add(time.Second), Value: 10, Status: core.PointSuccess},
			{Timestamp: tui.startTime.Add(2 * time.Second), Value: math.NaN(), Status: core.PointTimeout},
			{Timestamp: tui.startTime.Add(3 * time.Second), Value: 30, Status: core.PointSuccess},
		},
	}}

	if got := tui.drawChart(series, 5, 3, now); got != "终端尺寸过小" {
		t.Errorf("expected size warning, got %q", got)
	}

	out := tui.drawChart(series, 80, 15, now)
	lines := strings.Split(out, "\n")
	if len(lines) != 15 {
		t.Fatalf("expected 15 lines, got %d", len(lines))
	}
	if !strings.Contains(out, "[green]") {
		t.Error("chart should use the series color")
	}
	if !strings.Contains(out, "└") {
		t.Error("chart should draw the x axis")
	}

	// 只有超时点时没有可用的值范围
	timeoutsOnly := []chartSeries{{id: "b", points: []core.DataPoint{
		{Timestamp: tui.startTime.Add(time.Second), Value: math.NaN(), Status: core.PointTimeout},
	}}}
	if got := tui.drawChart(timeoutsOnly, 80, 15, now); !strings.Contains(got, "没有有效数据") {
		t.Errorf("unexpected output %q", got)
	}
}

func TestValueRangeCeiling(t *testing.T) {
	tui := NewTUIForTest(newMockController(), NewConfigWithOptions(WithDefaultCeiling(50), WithValueBufferRatio(0)))
	now := time.Now()
	series := []chartSeries{{points: []core.DataPoint{
		{Timestamp: now, Value: 2},
		{Timestamp: now, Value: 4},
	}}}
	minVal, maxVal, _, msg := tui.calculateValueRange(series, now.Add(-time.Second), now.Add(time.Second))
	if msg != "" {
		t.Fatal(msg)
	}
	if minVal != 2 || maxVal != 50 {
		t.Errorf("expected range 2-50, got %v-%v", minVal, maxVal)
	}
}

func TestBrailleLineStaysOnCanvas(t *testing.T) {
	canvas := make([][]brailleCell, 4)
	for i := range canvas {
		canvas[i] = make([]brailleCell, 2)
	}
	drawBrailleLine(canvas, 0, 0, 20, 20, "[red]")
	if canvas[0][0].char == 0 || canvas[0][0].color != "[red]" {
		t.Error("line start should be plotted")
	}
	plotBraille(canvas, -1, 0, "[red]")
	plotBraille(nil, 0, 0, "[red]")
}
