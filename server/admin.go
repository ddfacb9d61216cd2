package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// StartAdmin 启动管理与监控 HTTP 服务（独立于反应器的并发任务）。
// GET  /healthz       存活探测
// GET  /metrics       运行指标快照
// GET  /admin/config  当前可热更新配置
// POST /admin/config  以 JSON 载荷更新部分字段
// GET  /admin/live    WebSocket 实时状态流（每秒推送一次快照）
func StartAdmin(cfg *Config, srv *Server) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", handleMetrics(srv))
	mux.HandleFunc("/admin/config", handleAdminConfig(cfg))
	mux.HandleFunc("/admin/live", handleLive(srv))

	hs := &http.Server{Addr: cfg.Admin.Addr, Handler: mux}
	go func() {
		Log.Infof("Admin interface listening on %s", cfg.Admin.Addr)
		if err := hs.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			Log.Errorf("admin listen: %v", err)
		}
	}()
	return hs
}

// statusSnapshot 汇总一次运行状态
func statusSnapshot(srv *Server) map[string]any {
	return map[string]any{
		"uptime_seconds": int64(srv.Uptime().Seconds()),
		"world_age":      srv.World().Age(),
		"players":        srv.World().PlayerNames(),
		"metrics":        srv.Metrics().Snapshot(),
	}
}

func handleMetrics(srv *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(statusSnapshot(srv))
	}
}

// handleAdminConfig 读取与热更新心跳参数
func handleAdminConfig(cfg *Config) http.HandlerFunc {
	type body struct {
		KeepAliveIntervalMs *int64 `json:"keepAliveIntervalMs,omitempty"`
		KeepAliveTimeoutMs  *int64 `json:"keepAliveTimeoutMs,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			interval := cfg.KeepAliveInterval().Milliseconds()
			timeout := cfg.KeepAliveTimeout().Milliseconds()
			cur := body{KeepAliveIntervalMs: &interval, KeepAliveTimeoutMs: &timeout}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(cur)
		case http.MethodPost:
			var b body
			if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
				http.Error(w, "invalid json", http.StatusBadRequest)
				return
			}
			if b.KeepAliveIntervalMs != nil && *b.KeepAliveIntervalMs > 0 {
				cfg.SetKeepAliveInterval(time.Duration(*b.KeepAliveIntervalMs) * time.Millisecond)
			}
			if b.KeepAliveTimeoutMs != nil && *b.KeepAliveTimeoutMs > 0 {
				cfg.SetKeepAliveTimeout(time.Duration(*b.KeepAliveTimeoutMs) * time.Millisecond)
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
			Log.Infof("config updated: keepalive interval=%s timeout=%s",
				cfg.KeepAliveInterval(), cfg.KeepAliveTimeout())
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

var liveUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 管理接口默认只在内网暴露，放开来源校验
		return true
	},
}

// handleLive WebSocket 实时状态流：独立写协程每秒推送一次快照
func handleLive(srv *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := liveUpgrader.Upgrade(w, r, nil)
		if err != nil {
			Log.Debugf("live upgrade error: %v", err)
			return
		}
		go livePump(srv, ws)
	}
}

func livePump(srv *Server, ws *websocket.Conn) {
	defer ws.Close()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for range ticker.C {
		payload, err := json.Marshal(statusSnapshot(srv))
		if err != nil {
			return
		}
		_ = ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}
