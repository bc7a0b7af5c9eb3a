// Package tui 提供多目标延迟监控的终端用户界面
// 支持实时数据可视化、启动/停止测量以及目标管理
package tui

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Kevin-Rudy/pingdeck/pkg/core"
	"github.com/Kevin-Rudy/pingdeck/pkg/monitor"
	"github.com/Kevin-Rudy/pingdeck/pkg/router"
	"github.com/rivo/tview"
	"golang.org/x/time/rate"
)

// Controller 界面依赖的监控器操作
type Controller interface {
	Statuses() []monitor.Status
	SampleCount() int
	Toggle(ctx context.Context, id string) (bool, error)
	StopAll(ctx context.Context) error
	Add(name, address string) (core.Endpoint, error)
	Remove(id string) error
	ToggleFavorite(id string) (bool, error)
	Subscribe(id string) *router.Subscription
}

// TUI 主界面结构
type TUI struct {
	app     *tview.Application
	pages   *tview.Pages
	flex    *tview.Flex
	chart   *tview.TextView
	status  *tview.TextView
	rowFlex []*tview.Flex

	ctrl   Controller
	logger *slog.Logger

	// 配置信息
	tuiConfig *Config

	// 数据存储
	statuses []monitor.Status
	statsMu  sync.RWMutex

	// 界面状态
	selectedRow int
	identifiers []string
	colorIndex  map[string]int // 目标首次出现的顺序，保证颜色稳定
	message     string
	modalOpen   bool

	// 导航事件频率控制
	navLimiter *rate.Limiter

	// 控制
	sub      *router.Subscription
	stopChan chan struct{}
	doneChan chan struct{}
	stopOnce sync.Once

	// 测试模式标志
	testMode bool

	// 时间管理
	startTime time.Time // 程序启动时间，用于时间窗口计算
}

// NewTUI 创建新的TUI实例
func NewTUI(ctrl Controller, tuiConfig *Config, logger *slog.Logger) *TUI {
	t := newTUI(ctrl, tuiConfig, logger, false)
	t.app = tview.NewApplication()
	t.chart = tview.NewTextView()
	t.status = tview.NewTextView()

	t.setupUI()
	t.setupKeyBindings()
	return t
}

// NewTUIForTest 创建用于测试的TUI实例（不初始化图形组件）
func NewTUIForTest(ctrl Controller, tuiConfig *Config) *TUI {
	return newTUI(ctrl, tuiConfig, nil, true)
}

func newTUI(ctrl Controller, tuiConfig *Config, logger *slog.Logger, testMode bool) *TUI {
	if tuiConfig == nil {
		tuiConfig = DefaultConfig()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &TUI{
		ctrl:        ctrl,
		logger:      logger,
		tuiConfig:   tuiConfig,
		colorIndex:  make(map[string]int),
		navLimiter:  rate.NewLimiter(rate.Limit(tuiConfig.NavigationRate), tuiConfig.NavigationBurst),
		stopChan:    make(chan struct{}),
		doneChan:    make(chan struct{}),
		testMode:    testMode,
		selectedRow: -1,         // 默认全选状态
		startTime:   time.Now(), // 记录程序启动时间
	}
}

// Run 启动TUI界面，返回时已请求停止所有测量
func (t *TUI) Run() error {
	t.sub = t.ctrl.Subscribe("")
	defer t.sub.Unsubscribe()

	// 启动数据处理goroutine
	go t.processData()

	// 运行应用
	err := t.app.Run()

	// 确保清理工作完成
	t.Stop()
	<-t.doneChan

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if stopErr := t.ctrl.StopAll(ctx); stopErr != nil {
		t.logger.Warn("failed to stop runs on exit", "error", stopErr)
	}

	return err
}

// Stop 停止TUI界面
func (t *TUI) Stop() {
	t.stopOnce.Do(func() {
		// 先发送停止信号，让processData退出
		close(t.stopChan)

		// 停止应用
		if t.app != nil {
			t.app.Stop()
		}
	})
}

// processData 处理事件通知并按固定间隔刷新界面
func (t *TUI) processData() {
	defer close(t.doneChan)

	uiTicker := time.NewTicker(t.tuiConfig.RefreshInterval)
	defer uiTicker.Stop()

	// 初始UI刷新
	t.refreshStatuses()
	t.handleUIRefresh()

	for {
		select {
		case <-t.sub.C():
			t.handleEvents(t.sub.Drain())

		case <-uiTicker.C:
			t.refreshStatuses()
			t.handleUIRefresh()

		case <-t.stopChan:
			return
		}
	}
}

// handleUIRefresh 处理UI刷新
func (t *TUI) handleUIRefresh() {
	if !t.testMode && t.app != nil {
		t.safeUIUpdate(func() {
			t.rebuildUI()
			t.updateChart()
			t.updateStatusBar()
		})
	}
}
