package main

import (
	"fmt"
	"time"

	"github.com/Kevin-Rudy/pingdeck/pkg/pinger"
	"github.com/urfave/cli/v2"
)

// createCliApp 创建CLI应用实例
func createCliApp() *cli.App {
	app := &cli.App{
		Name:    AppName,
		Version: AppVersion,
		Usage:   AppDesc,
		Flags:   createCliFlags(),
		Action:  runTUI,
		Before: func(c *cli.Context) error {
			// IP版本冲突检查
			if c.IsSet("4") && c.Bool("6") {
				return cli.Exit(fmt.Sprintf("错误: %v", errConflictingIP), 1)
			}
			return nil
		},
	}

	app.Commands = createCommands()

	return app
}

// createCliFlags 创建全局参数定义，未指定时使用配置文件或默认值
func createCliFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Usage:   "YAML配置文件路径",
			EnvVars: []string{"PINGDECK_CONFIG"},
		},
		&cli.BoolFlag{
			Name:  "4",
			Usage: "使用IPv4进行域名解析（默认）",
			Value: true,
		},
		&cli.BoolFlag{
			Name:  "6",
			Usage: "使用IPv6进行域名解析",
		},
		&cli.DurationFlag{
			Name:    "interval",
			Aliases: []string{"n"},
			Value:   time.Second,
			Usage:   "ping间隔时间 (例如: 500ms, 1s)",
		},
		&cli.DurationFlag{
			Name:    "timeout",
			Aliases: []string{"t"},
			Value:   2 * time.Second,
			Usage:   "ping超时时间 (例如: 2s, 1000ms)",
		},
		&cli.IntFlag{
			Name:    "count",
			Aliases: []string{"c"},
			Value:   20,
			Usage:   "每轮测量的探测次数",
		},
		&cli.StringFlag{
			Name:  "mode",
			Value: pinger.ModeAuto,
			Usage: "探测方式: auto, icmp, command",
		},
		&cli.IntFlag{
			Name:    "buffer",
			Aliases: []string{"b"},
			Value:   150,
			Usage:   "每个目标保留的历史数据点数量",
		},
		&cli.DurationFlag{
			Name:    "refresh-rate",
			Aliases: []string{"r"},
			Value:   200 * time.Millisecond,
			Usage:   "UI刷新频率 (例如: 100ms, 500ms)",
		},
		&cli.IntFlag{
			Name:  "chart-width",
			Value: 20,
			Usage: "最小图表宽度",
		},
		&cli.IntFlag{
			Name:  "chart-height",
			Value: 5,
			Usage: "最小图表高度",
		},
		&cli.Float64Flag{
			Name:  "ceiling",
			Value: 100.0,
			Usage: "图表默认上限值 (ms)",
		},
		&cli.StringFlag{
			Name:  "store",
			Value: StoreFile,
			Usage: "持久化存储: file, sqlite, memory",
		},
		&cli.StringFlag{
			Name:  "store-path",
			Usage: "存储文件路径，留空使用用户配置目录",
		},
		&cli.StringFlag{
			Name:  "log-file",
			Usage: "日志文件路径（TUI模式下不指定则不输出日志）",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Value: "info",
			Usage: "日志级别: debug, info, warn, error",
		},
	}
}

// createCommands 创建子命令
func createCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:   "tui",
			Usage:  "启动交互式界面（默认）",
			Action: runTUI,
		},
		{
			Name:      "run",
			Usage:     "无界面测量指定目标并输出汇总",
			ArgsUsage: "[目标ID...]",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "all", Usage: "测量所有目标"},
				&cli.BoolFlag{Name: "favorites", Usage: "测量所有收藏的目标"},
				&cli.StringFlag{Name: "chart", Usage: "把延迟曲线输出为PNG文件"},
				&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "不打印单次探测结果"},
			},
			Action: runHeadless,
		},
		{
			Name:  "list",
			Usage: "列出所有目标",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "json", Usage: "以JSON格式输出"},
			},
			Action: runList,
		},
		{
			Name:      "add",
			Usage:     "添加自定义目标",
			ArgsUsage: "<名称> <地址>",
			Action:    runAdd,
		},
		{
			Name:      "remove",
			Aliases:   []string{"rm"},
			Usage:     "删除自定义目标",
			ArgsUsage: "<目标ID>",
			Action:    runRemove,
		},
		{
			Name:      "fav",
			Usage:     "切换目标的收藏状态",
			ArgsUsage: "<目标ID>",
			Action:    runFavorite,
		},
		{
			Name:      "history",
			Usage:     "查看最近的测量记录（需要sqlite存储）",
			ArgsUsage: "[目标ID]",
			Flags: []cli.Flag{
				&cli.IntFlag{Name: "limit", Value: 20, Usage: "最多显示的记录数"},
			},
			Action: runHistory,
		},
		{
			Name:  "serve",
			Usage: "启动WebSocket推送服务",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "addr", Usage: "监听地址，例如 127.0.0.1:8642"},
				&cli.StringFlag{Name: "token", Usage: "访问令牌", EnvVars: []string{"PINGDECK_TOKEN"}},
			},
			Action: runServe,
		},
		{
			Name:    "version",
			Aliases: []string{"v"},
			Usage:   "显示详细版本信息",
			Action: func(c *cli.Context) error {
				osName, _, impl := pinger.GetSystemInfo()
				fmt.Fprintf(c.App.Writer, "%s v%s\n", AppName, AppVersion)
				fmt.Fprintf(c.App.Writer, "描述: %s\n", AppDesc)
				fmt.Fprintf(c.App.Writer, "系统: %s\n", osName)
				fmt.Fprintf(c.App.Writer, "实现: %s\n", impl)
				return nil
			},
		},
	}
}
