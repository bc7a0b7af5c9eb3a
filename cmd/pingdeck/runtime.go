package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Kevin-Rudy/pingdeck/pkg/core"
	"github.com/Kevin-Rudy/pingdeck/pkg/monitor"
	"github.com/Kevin-Rudy/pingdeck/pkg/pinger"
	"github.com/Kevin-Rudy/pingdeck/pkg/store"
)

// shutdownGrace 退出时等待运行中测量确认停止的最长时间
const shutdownGrace = 2 * time.Second

// parseLevel 解析日志级别
func parseLevel(level string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return l, fmt.Errorf("未知的日志级别: %q", level)
	}
	return l, nil
}

// newLogger 创建结构化日志记录器
// 指定了日志文件时写入文件，否则写入fallback（为nil时丢弃）
func newLogger(cfg LogConfig, fallback io.Writer) (*slog.Logger, func() error, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	out := fallback
	closeFn := func() error { return nil }
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("无法打开日志文件: %w", err)
		}
		out = f
		closeFn = f.Close
	}
	if out == nil {
		return slog.New(slog.DiscardHandler), closeFn, nil
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})), closeFn, nil
}

// openedStore 打开的存储及其可选的测量记录能力
type openedStore struct {
	store    core.Store
	recorder monitor.RunRecorder
	sqlite   *store.SQLiteStore
	close    func() error
}

// openStore 按配置打开持久化存储
func openStore(cfg StoreConfig) (*openedStore, error) {
	switch cfg.Kind {
	case StoreMemory:
		return &openedStore{store: store.NewMemoryStore(), close: func() error { return nil }}, nil
	case StoreSQLite:
		path := cfg.Path
		if path == "" {
			path = filepath.Join(store.DefaultDir(), "pingdeck.db")
		}
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("无法创建数据目录: %w", err)
		}
		s, err := store.OpenSQLite(path)
		if err != nil {
			return nil, err
		}
		return &openedStore{store: s, recorder: s, sqlite: s, close: s.Close}, nil
	default:
		return &openedStore{store: store.NewFileStore(cfg.Path), close: func() error { return nil }}, nil
	}
}

// appRuntime 长时间运行的命令共享的组件
type appRuntime struct {
	config  *AppConfig
	logger  *slog.Logger
	store   *openedStore
	engine  *pinger.Engine
	monitor *monitor.Monitor

	cancel    context.CancelFunc
	loopDone  chan error
	closeOnce sync.Once
}

// startRuntime 创建探测引擎和监控器，加载注册表并启动事件循环
func startRuntime(config *AppConfig, logger *slog.Logger) (*appRuntime, error) {
	st, err := openStore(config.Store)
	if err != nil {
		return nil, fmt.Errorf("无法打开存储: %w", err)
	}

	engine, err := pinger.New(config.PingerConfig, logger.With("component", "pinger"))
	if err != nil {
		st.close()
		return nil, fmt.Errorf("无法创建ping引擎: %w", err)
	}

	opts := []monitor.Option{
		monitor.WithConfig(config.MonitorConfig),
		monitor.WithStore(st.store),
		monitor.WithLogger(logger.With("component", "monitor")),
	}
	if st.recorder != nil {
		opts = append(opts, monitor.WithRunRecorder(st.recorder))
	}
	mon, err := monitor.New(engine, opts...)
	if err != nil {
		engine.Close()
		st.close()
		return nil, err
	}
	if err := mon.Load(); err != nil {
		logger.Warn("using built-in endpoints only", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	rt := &appRuntime{
		config:   config,
		logger:   logger,
		store:    st,
		engine:   engine,
		monitor:  mon,
		cancel:   cancel,
		loopDone: make(chan error, 1),
	}
	go func() {
		rt.loopDone <- mon.Run(ctx)
	}()
	return rt, nil
}

// Close 停止所有测量并按依赖顺序释放资源，可重复调用
func (rt *appRuntime) Close() {
	rt.closeOnce.Do(rt.shutdown)
}

func (rt *appRuntime) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if err := rt.monitor.StopAll(ctx); err != nil {
		rt.logger.Warn("stop all failed", "error", err)
	}
	// 等待停止事件被处理，使测量记录能够保存
	for rt.monitor.RunningCount() > 0 && ctx.Err() == nil {
		time.Sleep(20 * time.Millisecond)
	}

	if err := rt.engine.Close(); err != nil {
		rt.logger.Warn("engine close failed", "error", err)
	}
	<-rt.loopDone
	rt.cancel()

	rt.monitor.Close()
	if err := rt.store.close(); err != nil {
		rt.logger.Warn("store close failed", "error", err)
	}
}
