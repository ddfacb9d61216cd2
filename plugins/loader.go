package plugins

import (
	"fmt"
	"os"
	"path/filepath"
	"plugin"
)

// ErrKind 插件加载失败的分类
type ErrKind int

const (
	// ErrKindFileIO 动态库打开失败（文件损坏、格式不符等）
	ErrKindFileIO ErrKind = iota
	// ErrKindMissingEntry 缺少入口符号或签名不符
	ErrKindMissingEntry
	// ErrKindConstruction 入口调用或 OnLoad 失败
	ErrKindConstruction
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindFileIO:
		return "file io"
	case ErrKindMissingEntry:
		return "missing entry point"
	case ErrKindConstruction:
		return "construction"
	default:
		return "unknown"
	}
}

// LoadError 单个插件文件的可恢复加载错误
type LoadError struct {
	Kind ErrKind
	File string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("plugin %s: %s: %v", e.File, e.Kind, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Report 一次目录装载的汇总：成功数与逐文件错误。
// 单个文件失败只记录并跳过，不中止进程启动。
type Report struct {
	Loaded int
	Errors []*LoadError
}

// 允许的插件扩展名
var pluginExtensions = map[string]bool{
	".so":     true,
	".dll":    true,
	".dylib":  true,
	".plugin": true,
}

// Loader 插件加载器：持有全部已加载实例，供 plugins 命令查询与退出时卸载
type Loader struct {
	ctx     *Context
	plugins []Plugin
}

func NewLoader(ctx *Context) *Loader {
	return &Loader{ctx: ctx}
}

// LoadDirectory 装载目录下的全部插件：目录不存在则递归创建；
// 只扫描一层；扩展名不在允许清单内的文件不会被尝试加载。
func (l *Loader) LoadDirectory(dir string) (*Report, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create plugin directory %s: %w", dir, err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read plugin directory %s: %w", dir, err)
	}

	report := &Report{}
	for _, entry := range entries {
		if entry.IsDir() || !pluginExtensions[filepath.Ext(entry.Name())] {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := l.loadOne(path); err != nil {
			report.Errors = append(report.Errors, err)
			if l.ctx != nil && l.ctx.Log != nil {
				l.ctx.Log.Warnf("skipping plugin: %v", err)
			}
			continue
		}
		report.Loaded++
	}
	return report, nil
}

// loadOne 装载单个插件文件
func (l *Loader) loadOne(path string) *LoadError {
	lib, err := plugin.Open(path)
	if err != nil {
		return &LoadError{Kind: ErrKindFileIO, File: path, Err: err}
	}
	sym, err := lib.Lookup(EntryPointSymbol)
	if err != nil {
		return &LoadError{Kind: ErrKindMissingEntry, File: path, Err: err}
	}
	entry, ok := sym.(EntryPoint)
	if !ok {
		return &LoadError{
			Kind: ErrKindMissingEntry,
			File: path,
			Err:  fmt.Errorf("symbol %s has type %T, want func() plugins.Plugin", EntryPointSymbol, sym),
		}
	}
	p := entry()
	if p == nil {
		return &LoadError{Kind: ErrKindConstruction, File: path, Err: fmt.Errorf("entry point returned nil")}
	}
	if err := p.OnLoad(l.ctx); err != nil {
		return &LoadError{Kind: ErrKindConstruction, File: path, Err: err}
	}
	l.plugins = append(l.plugins, p)
	if l.ctx != nil && l.ctx.Log != nil {
		l.ctx.Log.Infof("Loading plugin: %s", filepath.Base(path))
	}
	return nil
}

// Names 已加载插件名列表
func (l *Loader) Names() []string {
	names := make([]string, 0, len(l.plugins))
	for _, p := range l.plugins {
		names = append(names, p.Name())
	}
	return names
}

// Count 已加载插件数
func (l *Loader) Count() int {
	return len(l.plugins)
}

// UnloadAll 按加载的逆序卸载全部插件（进程退出前调用）
func (l *Loader) UnloadAll() {
	for i := len(l.plugins) - 1; i >= 0; i-- {
		l.plugins[i].OnUnload()
	}
	l.plugins = nil
}
