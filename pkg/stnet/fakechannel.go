package stnet

import (
	"net/netip"
	"sync"
)

// FakeChannel is an in-memory Channel for unit tests: bytes written
// with Send are queued and returned by the peer's Receive/Read, with
// no real socket involved. Pair two FakeChannels with Pipe to simulate
// a connection.
type FakeChannel struct {
	base

	mu   sync.Mutex
	in   [][]byte // datagrams/stream chunks available to Receive/Read
	peer *FakeChannel
}

// NewFakeChannel creates a standalone FakeChannel; use Pipe to connect
// two of them.
func NewFakeChannel() *FakeChannel {
	return &FakeChannel{base: newBase()}
}

// Pipe connects a and b so that sends on one arrive on the other's
// Receive/Read, and marks both connected.
func Pipe(a, b *FakeChannel) {
	a.peer = b
	b.peer = a
	a.connected = true
	b.connected = true
}

func (c *FakeChannel) Bind(local netip.AddrPort) error {
	if err := c.checkBind(); err != nil {
		return err
	}
	c.bound = true
	c.local = local
	return nil
}

func (c *FakeChannel) Connect(remote netip.AddrPort) error {
	if err := c.checkConnect(); err != nil {
		return err
	}
	c.connected = true
	c.remote = remote
	return nil
}

func (c *FakeChannel) Disconnect() error {
	if !c.connected {
		return ErrSocket
	}
	c.connected = false
	return nil
}

// Deliver injects a datagram as if received on c, for tests that
// drive a Connection/Docker without a real peer FakeChannel.
func (c *FakeChannel) Deliver(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := append([]byte(nil), data...)
	c.in = append(c.in, cp)
}

func (c *FakeChannel) Read(buf []byte) (int, error) {
	if c.closed {
		return 0, ErrClosedChannel
	}
	if !c.Alive() || !c.connected {
		return 0, ErrSocket
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.in) == 0 {
		return 0, nil
	}
	n := copy(buf, c.in[0])
	if n >= len(c.in[0]) {
		c.in = c.in[1:]
	} else {
		c.in[0] = c.in[0][n:]
	}
	return n, nil
}

func (c *FakeChannel) Receive(buf []byte) (int, netip.AddrPort, error) {
	if c.closed {
		return 0, netip.AddrPort{}, ErrClosedChannel
	}
	if !c.Alive() {
		return 0, netip.AddrPort{}, ErrSocket
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.in) == 0 {
		return 0, netip.AddrPort{}, nil
	}
	data := c.in[0]
	c.in = c.in[1:]
	n := copy(buf, data)
	return n, c.remote, nil
}

func (c *FakeChannel) Send(buf []byte, _ netip.AddrPort) (int, error) {
	if c.closed {
		return 0, ErrClosedChannel
	}
	if !c.Alive() {
		return 0, ErrSocket
	}
	if c.peer == nil {
		return len(buf), nil // disposable sink: no peer attached
	}
	c.peer.Deliver(buf)
	return len(buf), nil
}

func (c *FakeChannel) SetBlocking(b bool) error {
	c.blocking = b
	return nil
}

func (c *FakeChannel) Close() error {
	if c.closed {
		return nil
	}
	c.markClosed()
	return nil
}
