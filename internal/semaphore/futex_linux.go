//go:build linux

package semaphore

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// futex(2) operations. The private flag is deliberately absent: waiters and
// wakers live in different processes.
const (
	futexWaitOp = 0
	futexWakeOp = 1
)

// WaitChange blocks while *addr == old. It returns early on a spurious or
// interrupted wake, so callers re-check their condition in a loop.
func WaitChange(addr *uint32, old uint32) error {
	_, _, errno := unix.Syscall6(unix.SYS_FUTEX, uintptr(unsafe.Pointer(addr)), futexWaitOp, uintptr(old), 0, 0, 0)
	switch errno {
	case 0, unix.EAGAIN, unix.EINTR:
		return nil
	}
	return errno
}

// Wake wakes up to n waiters blocked in WaitChange on addr.
func Wake(addr *uint32, n int) error {
	_, _, errno := unix.Syscall6(unix.SYS_FUTEX, uintptr(unsafe.Pointer(addr)), futexWakeOp, uintptr(n), 0, 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}
