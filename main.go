package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"minicraft/plugins"
	"minicraft/server"
)

const serverVersion = "0.1.0"

// minicraft 入口：初始化日志与配置，装载插件，启动控制台/RCON/管理接口，
// 最后把主协程交给反应器事件循环
func main() {
	cfg := server.DefaultConfig()
	var logFile string
	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address, e.g. :25565")
	flag.StringVar(&cfg.PluginDir, "plugins", cfg.PluginDir, "plugin directory")
	flag.BoolVar(&cfg.UseConsole, "console", true, "enable interactive console")
	flag.BoolVar(&cfg.ScrubIPs, "scrub-ips", false, "scrub peer addresses in logs")
	flag.IntVar(&cfg.MaxPlayers, "max-players", cfg.MaxPlayers, "player limit")
	flag.BoolVar(&cfg.RCON.Enabled, "rcon", false, "enable RCON")
	flag.StringVar(&cfg.RCON.Addr, "rcon-addr", cfg.RCON.Addr, "RCON listen address")
	flag.StringVar(&cfg.RCON.Password, "rcon-password", "", "RCON password")
	flag.BoolVar(&cfg.Admin.Enabled, "admin", false, "enable admin HTTP interface")
	flag.StringVar(&cfg.Admin.Addr, "admin-addr", cfg.Admin.Addr, "admin HTTP listen address")
	flag.StringVar(&logFile, "log", "server.log", "log file path")
	flag.Parse()

	if err := server.InitLogger(logFile); err != nil {
		panic(err)
	}
	defer server.SyncLogger()

	start := time.Now()

	// 插件装载：早于反应器开始轮询；坏插件跳过并记日志，不中止启动
	loader := plugins.NewLoader(&plugins.Context{
		ServerName:    "minicraft",
		ServerVersion: serverVersion,
		Log:           server.Log,
	})
	report, err := loader.LoadDirectory(cfg.PluginDir)
	if err != nil {
		server.Log.Fatalf("plugin directory: %v", err)
	}
	server.Log.Infof("Loaded %d plugins (%d failed).", report.Loaded, len(report.Errors))

	srv := server.NewServer(cfg)
	srv.Dispatcher().SetPluginLoader(loader)

	reactor, err := server.NewReactor(cfg, srv)
	if err != nil {
		server.Log.Fatalf("startup failed: %v", err)
	}

	if cfg.UseConsole {
		go server.RunConsole(srv, os.Stdin)
	}
	if cfg.RCON.Enabled {
		if _, err := server.StartRCON(cfg, srv); err != nil {
			server.Log.Fatalf("rcon startup failed: %v", err)
		}
	}
	if cfg.Admin.Enabled {
		server.StartAdmin(cfg, srv)
	}

	// 信号退出：卸载插件、同步日志后直接终止，不做套接字优雅排空
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		server.Log.Warn("Stopping Server")
		loader.UnloadAll()
		server.SyncLogger()
		os.Exit(0)
	}()

	server.Log.Infof("Started Server took %dms", time.Since(start).Milliseconds())
	server.Log.Infof("You now can connect to the server, listening on %s", reactor.Addr())

	if err := reactor.Run(); err != nil {
		server.Log.Fatalf("server loop failed: %v", err)
	}
}
