package decoder

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// raisePriority lowers the nice value of the calling goroutine's thread by
// one. The goroutine stays locked to the thread, so the thread is discarded
// when the goroutine exits instead of returning to the scheduler's pool.
func raisePriority() {
	runtime.LockOSThread()

	tid := unix.Gettid()
	// The raw syscall returns 20 - nice.
	prio, err := unix.Getpriority(unix.PRIO_PROCESS, tid)
	if err == nil {
		err = unix.Setpriority(unix.PRIO_PROCESS, tid, 20-prio-1)
	}
	if err != nil {
		log.Info("video decoder: can't raise nice priority by 1: %v", err)
	}
}
