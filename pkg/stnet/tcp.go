package stnet

import (
	"errors"
	"net"
	"net/netip"
	"time"
)

// tcpChannel is a stream Channel backed by *net.TCPConn.
type tcpChannel struct {
	base
	conn *net.TCPConn
}

// NewTCP creates an open TCP Channel with no socket yet; Connect dials
// it.
func NewTCP() Channel {
	return &tcpChannel{base: newBase()}
}

func (c *tcpChannel) Bind(local netip.AddrPort) error {
	return errors.New("stnet: Bind not supported on stream channel, Connect initiates the dial")
}

func (c *tcpChannel) Connect(remote netip.AddrPort) error {
	if err := c.checkConnect(); err != nil {
		return err
	}
	d := net.Dialer{LocalAddr: localTCPAddrOrNil(c.local)}
	conn, err := d.Dial("tcp", remote.String())
	if err != nil {
		return errors.Join(ErrSocket, err)
	}
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		conn.Close()
		return ErrSocket
	}
	c.conn = tc
	c.connected = true
	c.remote = remote
	if addr, ok := tc.LocalAddr().(*net.TCPAddr); ok {
		c.local = addr.AddrPort()
	}
	c.applyNonblock()
	return nil
}

func localTCPAddrOrNil(local netip.AddrPort) *net.TCPAddr {
	if local == (netip.AddrPort{}) {
		return nil
	}
	return net.TCPAddrFromAddrPort(local)
}

// AdoptAccepted wraps an already-connected *net.TCPConn (e.g. from a
// listener's Accept), used by Hub when acting as a server.
func AdoptAccepted(conn *net.TCPConn) Channel {
	c := &tcpChannel{base: newBase(), conn: conn}
	c.connected = true
	if addr, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
		c.remote = addr.AddrPort()
	}
	if addr, ok := conn.LocalAddr().(*net.TCPAddr); ok {
		c.local = addr.AddrPort()
	}
	c.applyNonblock()
	return c
}

func (c *tcpChannel) Disconnect() error {
	return errors.New("stnet: Disconnect not supported on stream channel")
}

func (c *tcpChannel) Read(buf []byte) (int, error) {
	if c.closed {
		return 0, ErrClosedChannel
	}
	if !c.Alive() || !c.connected {
		return 0, ErrSocket
	}
	if !c.blocking {
		c.conn.SetReadDeadline(time.Now())
	} else {
		c.conn.SetReadDeadline(time.Time{})
	}
	n, err := c.conn.Read(buf)
	if err != nil {
		if masked(err) {
			return 0, nil
		}
		if err.Error() == "EOF" || errors.Is(err, net.ErrClosed) {
			if errors.Is(err, net.ErrClosed) {
				return 0, ErrClosedChannel
			}
			return -1, nil
		}
		return n, errors.Join(ErrSocket, err)
	}
	return n, nil
}

func (c *tcpChannel) Receive(buf []byte) (int, netip.AddrPort, error) {
	return 0, netip.AddrPort{}, errors.New("stnet: Receive not supported on stream channel, use Read")
}

func (c *tcpChannel) Send(buf []byte, _ netip.AddrPort) (int, error) {
	if c.closed {
		return 0, ErrClosedChannel
	}
	if !c.Alive() || !c.connected {
		return 0, ErrSocket
	}
	if !c.blocking {
		c.conn.SetWriteDeadline(time.Now())
	} else {
		c.conn.SetWriteDeadline(time.Time{})
	}
	n, err := c.conn.Write(buf)
	if err != nil {
		if masked(err) {
			return 0, nil
		}
		if errors.Is(err, net.ErrClosed) {
			return n, ErrClosedChannel
		}
		return n, errors.Join(ErrSocket, err)
	}
	return n, nil
}

func (c *tcpChannel) SetBlocking(b bool) error {
	if !c.open {
		return ErrSocket
	}
	c.blocking = b
	c.applyNonblock()
	return nil
}

func (c *tcpChannel) applyNonblock() {
	if c.conn == nil {
		return
	}
	setNonblock(c.conn, !c.blocking)
}

func (c *tcpChannel) Close() error {
	if c.closed {
		return nil
	}
	c.markClosed()
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
