package server

import (
	"bufio"
	"io"
	"strings"
)

// RunConsole 交互式控制台读取循环：逐行读取并交给命令分发器。
// 与反应器并发运行，仅通过 Server 的同步接口访问核心状态。
// 通常以 goroutine 形式挂在 os.Stdin 上，进程退出时一并终止。
func RunConsole(s *Server, in io.Reader) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if reply := s.Dispatcher().Dispatch(line); reply != "" {
			Log.Info(reply)
		}
	}
}
