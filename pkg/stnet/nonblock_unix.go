//go:build unix

package stnet

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// syscallConn is implemented by *net.UDPConn and *net.TCPConn.
type syscallConn interface {
	SyscallConn() (syscall.RawConn, error)
}

// setNonblock toggles O_NONBLOCK on conn's underlying file descriptor,
// giving Channel.SetBlocking real non-blocking semantics on unix
// platforms rather than the portable deadline-polling fallback used
// elsewhere.
func setNonblock(conn syscallConn, nonblock bool) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var setErr error
	ctrlErr := raw.Control(func(fd uintptr) {
		setErr = unix.SetNonblock(int(fd), nonblock)
	})
	if ctrlErr != nil {
		return ctrlErr
	}
	return setErr
}

// isWouldBlock reports whether err is the platform's "operation would
// block" errno, surfaced through a raw non-blocking read/write.
func isWouldBlock(err error) bool {
	return err == syscall.EWOULDBLOCK || err == syscall.EAGAIN
}
