package stnet

import (
	"errors"
	"net"
	"net/netip"
	"os"
	"time"
)

// udpChannel is a datagram Channel backed by *net.UDPConn, grounded on
// pkg/nspkt.Listener's use of net.ListenUDP/ReadFromUDPAddrPort.
type udpChannel struct {
	base
	conn *net.UDPConn
}

// NewUDP creates an open UDP Channel with no socket yet; it becomes
// alive once bound or connected.
func NewUDP() Channel {
	return &udpChannel{base: newBase()}
}

func (c *udpChannel) Bind(local netip.AddrPort) error {
	if err := c.checkBind(); err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", net.UDPAddrFromAddrPort(local))
	if err != nil {
		return errors.Join(ErrSocket, err)
	}
	c.conn = conn
	c.bound = true
	c.local = local
	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		c.local = addr.AddrPort()
	}
	c.applyNonblock()
	return nil
}

func (c *udpChannel) Connect(remote netip.AddrPort) error {
	if err := c.checkConnect(); err != nil {
		return err
	}
	conn, err := net.DialUDP("udp", localAddrOrNil(c.local), net.UDPAddrFromAddrPort(remote))
	if err != nil {
		return errors.Join(ErrSocket, err)
	}
	if c.conn != nil {
		c.conn.Close()
	}
	c.conn = conn
	c.connected = true
	c.remote = remote
	c.applyNonblock()
	return nil
}

func localAddrOrNil(local netip.AddrPort) *net.UDPAddr {
	if local == (netip.AddrPort{}) {
		return nil
	}
	return net.UDPAddrFromAddrPort(local)
}

func (c *udpChannel) Disconnect() error {
	if !c.connected {
		return ErrSocket
	}
	c.connected = false
	return nil
}

func (c *udpChannel) Read(buf []byte) (int, error) {
	return 0, errors.New("stnet: Read not supported on datagram channel, use Receive")
}

func (c *udpChannel) Receive(buf []byte) (int, netip.AddrPort, error) {
	if c.closed {
		return 0, netip.AddrPort{}, ErrClosedChannel
	}
	if !c.Alive() {
		return 0, netip.AddrPort{}, ErrSocket
	}
	if !c.blocking {
		c.conn.SetReadDeadline(time.Now())
	} else {
		c.conn.SetReadDeadline(time.Time{})
	}
	n, addr, err := c.conn.ReadFromUDPAddrPort(buf)
	if err != nil {
		if masked(err) {
			return 0, netip.AddrPort{}, nil
		}
		if errors.Is(err, net.ErrClosed) {
			return 0, netip.AddrPort{}, ErrClosedChannel
		}
		return 0, netip.AddrPort{}, errors.Join(ErrSocket, err)
	}
	return n, addr, nil
}

func (c *udpChannel) Send(buf []byte, remote netip.AddrPort) (int, error) {
	if c.closed {
		return 0, ErrClosedChannel
	}
	if !c.Alive() {
		return 0, ErrSocket
	}
	if !c.blocking {
		c.conn.SetWriteDeadline(time.Now())
	} else {
		c.conn.SetWriteDeadline(time.Time{})
	}
	var (
		n   int
		err error
	)
	if c.connected || remote == (netip.AddrPort{}) {
		n, err = c.conn.Write(buf)
	} else {
		n, err = c.conn.WriteToUDPAddrPort(buf, remote)
	}
	if err != nil {
		if masked(err) {
			return 0, nil
		}
		if errors.Is(err, net.ErrClosed) {
			return 0, ErrClosedChannel
		}
		return n, errors.Join(ErrSocket, err)
	}
	return n, nil
}

func (c *udpChannel) SetBlocking(b bool) error {
	if !c.open {
		return ErrSocket
	}
	c.blocking = b
	c.applyNonblock()
	return nil
}

func (c *udpChannel) applyNonblock() {
	if c.conn == nil {
		return
	}
	setNonblock(c.conn, !c.blocking)
}

func (c *udpChannel) Close() error {
	if c.closed {
		return nil
	}
	c.markClosed()
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// masked reports whether err is a would-block or deadline-exceeded
// error that spec.md §4.2/§7 requires be treated as zero bytes rather
// than surfaced to the caller.
func masked(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	return isWouldBlock(err)
}
