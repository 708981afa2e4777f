package safe

import (
	"runtime/debug"

	"CoReader/logger"
)

// Go starts a new goroutine that recovers from panic,
// so that panics don't crash the entire program.
func Go(f func()) {
	go func() {
		defer Recover("goroutine")
		f()
	}()
}

// Recover 放在 defer 里用：吃掉 panic 并带栈打日志。
// 核心承诺是任何操作的失败都收敛在操作边界，进程不倒。
func Recover(where string) {
	if r := recover(); r != nil {
		logger.Errorf("[safe] panic recovered at %s: %v\n%s", where, r, debug.Stack())
	}
}
