package feed

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Kevin-Rudy/pingdeck/pkg/monitor"
	"github.com/gorilla/websocket"
)

// Controller 推送服务可以执行的命令
type Controller interface {
	Source
	Start(ctx context.Context, id string) (bool, error)
	Stop(ctx context.Context, id string) error
}

// Server 提供websocket推送和JSON接口
type Server struct {
	cfg         *Config
	ctrl        Controller
	broadcaster *Broadcaster
	logger      *slog.Logger

	allowedOrigins map[string]bool
	allowedHosts   map[string]bool
}

// NewServer 创建推送服务
func NewServer(ctrl Controller, cfg *Config, logger *slog.Logger) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		cfg:            cfg,
		ctrl:           ctrl,
		broadcaster:    NewBroadcaster(ctrl, cfg, logger),
		logger:         logger,
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
	}

	for _, origin := range cfg.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}
	return s
}

// Broadcaster 返回服务使用的广播器
func (s *Server) Broadcaster() *Broadcaster {
	return s.broadcaster
}

// Handler 返回注册了所有路由的HTTP处理器
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("GET /api/endpoints", s.handleEndpoints)
	mux.HandleFunc("POST /api/endpoints/{id}/start", s.handleStart)
	mux.HandleFunc("POST /api/endpoints/{id}/stop", s.handleStop)
	return mux
}

// ListenAndServe 启动HTTP服务和广播器，ctx取消后优雅退出
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve 在给定的监听器上提供服务
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		_ = s.broadcaster.Run(ctx)
	}()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("feed listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade error", "error", err)
		return
	}

	c, err := s.broadcaster.AddClient(conn)
	if err != nil {
		s.logger.Warn("rejecting ws client", "remote", r.RemoteAddr, "error", err)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()), time.Now().Add(writeWait))
		conn.Close()
		return
	}
	s.logger.Info("ws client connected", "remote", r.RemoteAddr)

	go func() {
		defer func() {
			s.broadcaster.RemoveClient(c)
			s.logger.Info("ws client disconnected", "remote", r.RemoteAddr)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) handleEndpoints(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	s.writeJSON(w, http.StatusOK, newSnapshotPayload(s.ctrl.Statuses()))
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	accepted, err := s.ctrl.Start(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"accepted": accepted})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if err := s.ctrl.Stop(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, monitor.ErrUnknownEndpoint) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	s.logger.Warn("feed command failed", "error", err)
	http.Error(w, err.Error(), http.StatusBadGateway)
}

// writeJSON 先完整编码再写响应，编码失败时返回500
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Debug("json encode failed", "error", err)
		http.Error(w, "encode error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(data, '\n')); err != nil {
		s.logger.Debug("json write failed", "error", err)
	}
}

func (s *Server) authorize(r *http.Request) bool {
	if s.cfg.AuthToken == "" {
		return true
	}
	if r.URL.Query().Get("token") == s.cfg.AuthToken {
		return true
	}
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.cfg.AuthToken
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if s.allowedOrigins[origin] {
		return true
	}

	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	if s.allowedHosts[parsed.Host] || parsed.Host == r.Host {
		return true
	}

	switch parsed.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}
