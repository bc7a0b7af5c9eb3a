package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Kevin-Rudy/pingdeck/pkg/core"
	"github.com/Kevin-Rudy/pingdeck/pkg/feed"
	"github.com/Kevin-Rudy/pingdeck/pkg/monitor"
	"github.com/Kevin-Rudy/pingdeck/pkg/registry"
	"github.com/Kevin-Rudy/pingdeck/pkg/report"
	"github.com/Kevin-Rudy/pingdeck/pkg/tui"
	"github.com/urfave/cli/v2"
)

// prepare 构建并验证配置，创建日志记录器
func prepare(c *cli.Context, logFallback io.Writer) (*AppConfig, *slog.Logger, func() error, error) {
	config, err := buildConfigFromCLI(c)
	if err != nil {
		return nil, nil, nil, cli.Exit(fmt.Sprintf("读取配置失败: %v", err), 1)
	}
	if err := validateConfig(config); err != nil {
		return nil, nil, nil, cli.Exit(fmt.Sprintf("配置验证失败: %v", err), 1)
	}
	logger, closeLog, err := newLogger(config.Log, logFallback)
	if err != nil {
		return nil, nil, nil, cli.Exit(err.Error(), 1)
	}
	return config, logger, closeLog, nil
}

// runTUI 交互式界面，日志不能写到终端
func runTUI(c *cli.Context) error {
	config, logger, closeLog, err := prepare(c, nil)
	if err != nil {
		return err
	}
	defer closeLog()

	out := c.App.Writer
	fmt.Fprintf(out, "正在启动 %s v%s...\n", AppName, AppVersion)
	printRunningConfig(out, config)
	showSystemInfo(out)

	fmt.Fprintln(out, "\n正在初始化ping引擎...")
	rt, err := startRuntime(config, logger)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer rt.Close()
	fmt.Fprintf(out, "ping引擎初始化成功 (%s)\n", rt.engine.Name())

	printUsageInstructions(out)

	tuiInstance := tui.NewTUI(rt.monitor, config.TUIConfig, logger.With("component", "tui"))
	if err := tuiInstance.Run(); err != nil {
		return cli.Exit(fmt.Sprintf("TUI运行出错: %v", err), 1)
	}

	fmt.Fprintln(out, "\n程序已退出")
	return nil
}

// selectTargets 根据参数确定要测量的目标
func selectTargets(c *cli.Context, mon *monitor.Monitor) ([]string, error) {
	var ids []string
	switch {
	case c.Bool("all"):
		for _, e := range mon.List() {
			ids = append(ids, e.ID)
		}
	case c.Bool("favorites"):
		for _, e := range mon.List() {
			if e.Favorite {
				ids = append(ids, e.ID)
			}
		}
	default:
		for _, id := range c.Args().Slice() {
			if _, ok := mon.Endpoint(id); !ok {
				return nil, fmt.Errorf("%w: %s", monitor.ErrUnknownEndpoint, id)
			}
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, errors.New("没有要测量的目标，请指定目标ID或使用 --all / --favorites")
	}
	return ids, nil
}

// runHeadless 无界面测量，全部目标结束或收到中断信号后输出汇总
func runHeadless(c *cli.Context) error {
	config, logger, closeLog, err := prepare(c, os.Stderr)
	if err != nil {
		return err
	}
	defer closeLog()

	rt, err := startRuntime(config, logger)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer rt.Close()

	ids, err := selectTargets(c, rt.monitor)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 先订阅再启动，不会错过任何事件
	sub := rt.monitor.Subscribe("")
	defer sub.Unsubscribe()

	out := c.App.Writer
	quiet := c.Bool("quiet")
	pending := make(map[string]bool, len(ids))
	for _, id := range ids {
		ok, err := rt.monitor.Start(ctx, id)
		if err != nil {
			logger.Error("start failed", "endpoint", id, "error", err)
			continue
		}
		if ok {
			pending[id] = true
		}
	}

	for len(pending) > 0 {
		ev, err := sub.Next(ctx)
		if err != nil {
			break
		}
		if !pending[ev.EndpointID] {
			continue
		}
		if !quiet {
			printEvent(out, ev)
		}
		if ev.Kind.Terminal() {
			delete(pending, ev.EndpointID)
		}
	}

	// 中断时停止剩余测量，等待最终事件落入会话
	rt.Close()

	selected := make(map[string]bool, len(ids))
	for _, id := range ids {
		selected[id] = true
	}
	var statuses []monitor.Status
	for _, st := range rt.monitor.Statuses() {
		if selected[st.Endpoint.ID] {
			statuses = append(statuses, st)
		}
	}

	fmt.Fprintln(out)
	if err := report.WriteSummary(out, statuses, config.MonitorConfig.SampleCount); err != nil {
		return err
	}

	if path := c.String("chart"); path != "" {
		opts := report.DefaultChartOptions()
		if err := report.WriteChartFile(path, statuses, opts); err != nil {
			if errors.Is(err, report.ErrNoData) {
				fmt.Fprintln(out, "没有足够的数据生成图表")
				return nil
			}
			return cli.Exit(fmt.Sprintf("生成图表失败: %v", err), 1)
		}
		fmt.Fprintf(out, "图表已保存到 %s\n", path)
	}
	return nil
}

func printEvent(out io.Writer, ev core.SampleEvent) {
	switch ev.Kind {
	case core.EventSample:
		fmt.Fprintf(out, "%-8s seq=%-3d %.2fms\n", ev.EndpointID, ev.Seq, ev.LatencyMs)
	case core.EventTimeout:
		fmt.Fprintf(out, "%-8s seq=%-3d 超时\n", ev.EndpointID, ev.Seq)
	case core.EventComplete:
		fmt.Fprintf(out, "%-8s 测量完成\n", ev.EndpointID)
	case core.EventStopped:
		fmt.Fprintf(out, "%-8s 已停止\n", ev.EndpointID)
	}
}

// errRegistryUnreadable 已保存的目标无法读取时拒绝修改，避免用内置目标覆盖用户数据
var errRegistryUnreadable = errors.New("已保存的目标无法读取，拒绝修改以免覆盖")

// openRegistry 打开存储并加载注册表，变更会同步写回存储
// mutate为true时，读取失败直接返回错误
func openRegistry(c *cli.Context, mutate bool) (*registry.Registry, func() error, *error, error) {
	config, logger, closeLog, err := prepare(c, nil)
	if err != nil {
		return nil, nil, nil, err
	}
	st, err := openStore(config.Store)
	if err != nil {
		closeLog()
		return nil, nil, nil, cli.Exit(fmt.Sprintf("无法打开存储: %v", err), 1)
	}

	var persistErr error
	reg := registry.New(
		registry.WithLogger(logger.With("component", "registry")),
		registry.WithPersister(registry.PersisterFunc(func(p registry.Projection) {
			persistErr = registry.WriteProjection(st.store, p)
		})),
	)
	if _, err := reg.Load(st.store); err != nil {
		if mutate {
			st.close()
			closeLog()
			return nil, nil, nil, cli.Exit(fmt.Sprintf("%v: %v", errRegistryUnreadable, err), 1)
		}
		fmt.Fprintf(c.App.ErrWriter, "警告: 读取已保存的目标失败，仅使用内置目标: %v\n", err)
	}

	closeFn := func() error {
		err := st.close()
		closeLog()
		return err
	}
	return reg, closeFn, &persistErr, nil
}

func runList(c *cli.Context) error {
	reg, closeFn, _, err := openRegistry(c, false)
	if err != nil {
		return err
	}
	defer closeFn()

	endpoints := reg.List()
	if c.Bool("json") {
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(endpoints)
	}
	return report.WriteEndpoints(c.App.Writer, endpoints)
}

func runAdd(c *cli.Context) error {
	if c.NArg() != 2 {
		return cli.Exit("用法: pingdeck add <名称> <地址>", 1)
	}
	name, address := c.Args().Get(0), c.Args().Get(1)
	if err := registry.ValidateInput(name, address); err != nil {
		return cli.Exit(err.Error(), 1)
	}

	reg, closeFn, persistErr, err := openRegistry(c, true)
	if err != nil {
		return err
	}
	defer closeFn()

	e, err := reg.Add(core.Endpoint{Name: name, Address: address})
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if *persistErr != nil {
		return cli.Exit(fmt.Sprintf("保存失败: %v", *persistErr), 1)
	}
	fmt.Fprintf(c.App.Writer, "已添加 %s (%s)\n", e.ID, e.Address)
	return nil
}

func runRemove(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("用法: pingdeck remove <目标ID>", 1)
	}
	reg, closeFn, persistErr, err := openRegistry(c, true)
	if err != nil {
		return err
	}
	defer closeFn()

	id := c.Args().First()
	if err := reg.Remove(id); err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if *persistErr != nil {
		return cli.Exit(fmt.Sprintf("保存失败: %v", *persistErr), 1)
	}
	fmt.Fprintf(c.App.Writer, "已删除 %s\n", id)
	return nil
}

func runFavorite(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("用法: pingdeck fav <目标ID>", 1)
	}
	reg, closeFn, persistErr, err := openRegistry(c, true)
	if err != nil {
		return err
	}
	defer closeFn()

	id := c.Args().First()
	fav, err := reg.ToggleFavorite(id)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if *persistErr != nil {
		return cli.Exit(fmt.Sprintf("保存失败: %v", *persistErr), 1)
	}
	if fav {
		fmt.Fprintf(c.App.Writer, "已收藏 %s\n", id)
	} else {
		fmt.Fprintf(c.App.Writer, "已取消收藏 %s\n", id)
	}
	return nil
}

func runHistory(c *cli.Context) error {
	config, _, closeLog, err := prepare(c, nil)
	if err != nil {
		return err
	}
	defer closeLog()

	if config.Store.Kind != StoreSQLite {
		return cli.Exit("测量记录需要 --store sqlite", 1)
	}
	st, err := openStore(config.Store)
	if err != nil {
		return cli.Exit(fmt.Sprintf("无法打开存储: %v", err), 1)
	}
	defer st.close()

	runs, err := st.sqlite.RecentRuns(c.Context, c.Args().First(), c.Int("limit"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("读取测量记录失败: %v", err), 1)
	}
	return report.WriteRuns(c.App.Writer, runs)
}

// runServe 启动推送服务直到收到中断信号
func runServe(c *cli.Context) error {
	config, logger, closeLog, err := prepare(c, os.Stderr)
	if err != nil {
		return err
	}
	defer closeLog()

	if c.IsSet("addr") {
		config.FeedConfig.Addr = c.String("addr")
	}
	if c.IsSet("token") {
		config.FeedConfig.AuthToken = c.String("token")
	}
	if err := config.FeedConfig.Validate(); err != nil {
		return cli.Exit(fmt.Sprintf("feed配置错误: %v", err), 1)
	}

	rt, err := startRuntime(config, logger)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer rt.Close()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := feed.NewServer(rt.monitor, config.FeedConfig, logger.With("component", "feed"))
	if err := server.ListenAndServe(ctx); err != nil {
		return cli.Exit(fmt.Sprintf("推送服务出错: %v", err), 1)
	}
	return nil
}
