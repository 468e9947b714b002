//go:build !unix

package stnet

// On non-unix platforms there is no portable way to flip O_NONBLOCK on
// a net.Conn's file descriptor through the standard library, so
// SetBlocking(false) falls back to a short-deadline polling strategy
// in udp.go/tcp.go instead: a zero deadline before each read/write
// masks the resulting timeout exactly as a would-block would be
// masked on unix.
type syscallConn interface{}

func setNonblock(_ syscallConn, _ bool) error { return nil }

func isWouldBlock(err error) bool { return false }
