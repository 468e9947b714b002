// Package stnet implements the Channel abstraction spec.md §4.2
// requires: opaque byte/datagram I/O over a socket, with open/bound/
// connected flags, idempotent close, and would-block/timeout masking.
// Concrete transports (TCP, UDP) are provided alongside a fake, in-
// memory Channel for tests.
package stnet

import "net/netip"

// Channel is the abstract socket the transport core drives I/O
// through. Stream channels implement Read; datagram channels implement
// Receive. Both implement Send, Close, and the lifecycle flags.
type Channel interface {
	// Remote is the peer address, or the zero value if never connected.
	Remote() netip.AddrPort
	// Local is the bound local address, or the zero value if unbound.
	Local() netip.AddrPort

	Open() bool
	Bound() bool
	Connected() bool
	Blocking() bool

	// Alive reports open && (connected || bound).
	Alive() bool

	Bind(local netip.AddrPort) error
	Connect(remote netip.AddrPort) error
	// Disconnect clears the connected flag. Datagram channels only.
	Disconnect() error

	// Read is for stream channels: it requires alive && connected. It
	// returns the number of bytes written into buf, or -1 on EOF.
	// WouldBlock/Timeout are masked to (0, nil).
	Read(buf []byte) (int, error)

	// Receive is for datagram channels: it requires alive. It fills
	// buf and returns the byte count and source address, or (0,
	// zero-addr, nil) if no datagram is currently available.
	// WouldBlock/Timeout are masked to (0, zero-addr, nil).
	Receive(buf []byte) (int, netip.AddrPort, error)

	// Send writes buf, optionally to remote (datagram channels route
	// per-call; stream channels ignore remote and use the connected
	// peer). It returns the number of bytes actually written.
	Send(buf []byte, remote netip.AddrPort) (int, error)

	SetBlocking(b bool) error

	// Close is idempotent. Subsequent I/O fails with ErrClosedChannel.
	Close() error
}

// base holds the lifecycle flags and address pair shared by every
// Channel implementation, mirroring the NIOSelectableChannel /
// NIOSocketChannel / NIODatagramChannel split named in the original
// Objective-C headers: a common base embedded by protocol-specific
// channel types rather than one monolithic struct.
type base struct {
	remote, local netip.AddrPort
	open          bool
	bound         bool
	connected     bool
	blocking      bool
	closed        bool
}

func newBase() base {
	return base{open: true, blocking: true}
}

func (b *base) Remote() netip.AddrPort { return b.remote }
func (b *base) Local() netip.AddrPort  { return b.local }
func (b *base) Open() bool             { return b.open }
func (b *base) Bound() bool            { return b.bound }
func (b *base) Connected() bool        { return b.connected }
func (b *base) Blocking() bool         { return b.blocking }
func (b *base) Alive() bool            { return b.open && (b.connected || b.bound) }

func (b *base) checkBind() error {
	if b.closed {
		return ErrClosedChannel
	}
	if !b.open || b.bound {
		return ErrSocket
	}
	return nil
}

func (b *base) checkConnect() error {
	if b.closed {
		return ErrClosedChannel
	}
	if !b.open || b.connected {
		return ErrSocket
	}
	return nil
}

func (b *base) markClosed() {
	b.open = false
	b.bound = false
	b.connected = false
	b.closed = true
}
