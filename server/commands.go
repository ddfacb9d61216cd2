package server

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"minicraft/plugins"
)

// command 单条控制台命令
type command struct {
	usage string
	help  string
	run   func(s *Server, args []string) string
}

// CommandDispatcher 命令分发器：控制台与 RCON 共用。
// 命令在调用方的协程中执行，只通过 Server 的受锁/原子接口触碰核心状态。
type CommandDispatcher struct {
	srv      *Server
	commands map[string]command
	loader   *plugins.Loader
}

func NewCommandDispatcher(s *Server) *CommandDispatcher {
	d := &CommandDispatcher{srv: s, commands: make(map[string]command)}
	d.register("help", "help", "列出可用命令", d.cmdHelp)
	d.register("list", "list", "列出在线玩家", cmdList)
	d.register("say", "say <message>", "向所有玩家广播消息", cmdSay)
	d.register("kick", "kick <player> [reason]", "踢出指定玩家", cmdKick)
	d.register("plugins", "plugins", "列出已加载插件", d.cmdPlugins)
	d.register("uptime", "uptime", "显示服务器运行时长", cmdUptime)
	return d
}

// SetPluginLoader 注入插件加载器（main 完成插件装载后调用）
func (d *CommandDispatcher) SetPluginLoader(l *plugins.Loader) {
	d.loader = l
}

func (d *CommandDispatcher) register(name, usage, help string, run func(*Server, []string) string) {
	d.commands[name] = command{usage: usage, help: help, run: run}
}

// Dispatch 解析并执行一行命令，返回给发送方的文本回执
func (d *CommandDispatcher) Dispatch(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}
	name := strings.ToLower(fields[0])
	cmd, ok := d.commands[name]
	if !ok {
		return fmt.Sprintf("Unknown command %q, try \"help\"", name)
	}
	return cmd.run(d.srv, fields[1:])
}

func (d *CommandDispatcher) cmdHelp(_ *Server, _ []string) string {
	names := make([]string, 0, len(d.commands))
	for name := range d.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	var b strings.Builder
	b.WriteString("Available commands:")
	for _, name := range names {
		c := d.commands[name]
		b.WriteString(fmt.Sprintf("\n  %-24s %s", c.usage, c.help))
	}
	return b.String()
}

func cmdList(s *Server, _ []string) string {
	names := s.World().PlayerNames()
	sort.Strings(names)
	return fmt.Sprintf("There are %d/%d players online: %s",
		len(names), s.Config().MaxPlayers, strings.Join(names, ", "))
}

func cmdSay(s *Server, args []string) string {
	if len(args) == 0 {
		return "Usage: say <message>"
	}
	msg := strings.Join(args, " ")
	s.World().BroadcastChat("Server", msg)
	return "Message sent"
}

func cmdKick(s *Server, args []string) string {
	if len(args) == 0 {
		return "Usage: kick <player> [reason]"
	}
	reason := "Kicked by an operator"
	if len(args) > 1 {
		reason = strings.Join(args[1:], " ")
	}
	p, ok := s.World().FindByName(args[0])
	if !ok {
		return fmt.Sprintf("Player %q is not online", args[0])
	}
	p.Client.Kick(reason)
	return fmt.Sprintf("Kicked %s: %s", args[0], reason)
}

func (d *CommandDispatcher) cmdPlugins(_ *Server, _ []string) string {
	if d.loader == nil {
		return "Plugins (0): plugin loading disabled"
	}
	names := d.loader.Names()
	return fmt.Sprintf("Plugins (%d): %s", len(names), strings.Join(names, ", "))
}

func cmdUptime(s *Server, _ []string) string {
	return fmt.Sprintf("Server has been up for %s", s.Uptime().Round(time.Second))
}
