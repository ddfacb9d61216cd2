// Package plugins 定义插件 ABI 与插件加载器。
//
// 插件是一个以 -buildmode=plugin 构建的动态库，导出唯一入口符号
// PluginEntryPoint（签名 func() plugins.Plugin）。加载器在反应器启动前
// 同步调用每个插件的 OnLoad，并持有全部实例以便退出时统一 OnUnload。
package plugins

import (
	"go.uber.org/zap"
)

// EntryPointSymbol 插件必须导出的入口符号名
const EntryPointSymbol = "PluginEntryPoint"

// EntryPoint 入口符号的函数签名：零参数，返回插件实例
type EntryPoint = func() Plugin

// Plugin 插件生命周期契约
type Plugin interface {
	// Name 插件名，用于日志与 plugins 命令
	Name() string
	// OnLoad 加载时同步调用，早于反应器开始轮询；返回错误则该插件被跳过
	OnLoad(ctx *Context) error
	// OnUnload 进程退出前调用
	OnUnload()
}

// Context 加载时交给插件的宿主信息
type Context struct {
	ServerName    string
	ServerVersion string
	Log           *zap.SugaredLogger
}
