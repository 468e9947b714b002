// Package hub implements the Hub of spec.md §4.8: it owns channels and
// connections keyed by address pair, and its Tick drains socket bytes
// into the owning Connection and advances every state machine.
package hub

import (
	"net/netip"
	"time"

	"github.com/rs/zerolog"

	"github.com/r2northstar/startrek/pkg/addrpair"
	"github.com/r2northstar/startrek/pkg/conn"
	"github.com/r2northstar/startrek/pkg/stnet"
)

// ChannelFactory creates the concrete transport Channel for a
// (remote, local) pair: connect for a stream/TCP channel, bind for a
// datagram/UDP one.
type ChannelFactory func(remote, local netip.AddrPort) (stnet.Channel, error)

// Hub owns every Channel and Connection the process drives I/O
// through.
type Hub struct {
	cfg     conn.Config
	log     zerolog.Logger
	factory ChannelFactory
	delegate conn.Delegate

	channels    *addrpair.Map[stnet.Channel]
	connections *addrpair.Map[*conn.Connection]

	recvBuf []byte
}

// Config bundles the knobs Hub needs beyond the per-Connection Config.
type Config struct {
	Conn        conn.Config
	RecvBufSize int
}

// DefaultConfig matches spec.md §4.3's suggested Connection defaults
// and a generous UDP datagram size.
func DefaultConfig() Config {
	return Config{Conn: conn.DefaultConfig(), RecvBufSize: 65536}
}

// New creates a Hub. factory is used by Open to materialize a Channel
// the first time a (remote, local) pair is requested; delegate is
// installed on every Connection the Hub creates (typically a Gate).
func New(cfg Config, factory ChannelFactory, delegate conn.Delegate, log zerolog.Logger) *Hub {
	bufSize := cfg.RecvBufSize
	if bufSize <= 0 {
		bufSize = 65536
	}
	return &Hub{
		cfg:         cfg.Conn,
		log:         log,
		factory:     factory,
		delegate:    delegate,
		channels:    addrpair.New[stnet.Channel](),
		connections: addrpair.New[*conn.Connection](),
		recvBuf:     make([]byte, bufSize),
	}
}

// Open looks up the Channel for (remote, local), creating it via the
// factory on first use.
func (h *Hub) Open(remote, local netip.AddrPort) (stnet.Channel, error) {
	if ch, ok := h.channels.Get(remote, local); ok {
		return ch, nil
	}
	ch, err := h.factory(remote, local)
	if err != nil {
		return nil, err
	}
	h.channels.Put(remote, local, ch)
	return ch, nil
}

// Connect finds or creates the Channel for (remote, local), then finds
// or creates an ActiveConnection wrapping it.
func (h *Hub) Connect(remote, local netip.AddrPort) (*conn.Connection, error) {
	if c, ok := h.connections.Get(remote, local); ok {
		return c, nil
	}
	ch, err := h.Open(remote, local)
	if err != nil {
		return nil, err
	}
	c := conn.NewActive(remote, local, ch, h.delegate, h.cfg, h.log, h)
	h.connections.Put(remote, local, c)
	return c, nil
}

// Connection looks up an already-created Connection.
func (h *Hub) Connection(remote, local netip.AddrPort) (*conn.Connection, bool) {
	return h.connections.Get(remote, local)
}

// Tick drains every Channel's available bytes into its Connection,
// then advances every Connection's state machine, then cleans up
// Channels/Connections left in a dead Error state.
func (h *Hub) Tick(now time.Time) {
	channels := addrpair.Values(h.channels, func(c stnet.Channel) stnet.Channel { return c })
	for _, ch := range channels {
		h.drain(ch)
	}

	connections := addrpair.Values(h.connections, func(c *conn.Connection) *conn.Connection { return c })
	for _, c := range connections {
		c.Tick(now)
	}

	h.cleanup(connections)
}

// drain repeatedly reads/receives from ch, forwarding each non-empty
// chunk to the Connection registered for its address, until the
// channel reports no more data (WouldBlock/Timeout masked to 0 bytes
// at the Channel layer per spec.md §4.2/§7).
func (h *Hub) drain(ch stnet.Channel) {
	if !ch.Alive() {
		return
	}
	for {
		var n int
		var src netip.AddrPort
		var err error
		if ch.Connected() {
			n, err = ch.Read(h.recvBuf)
			src = ch.Remote()
		} else {
			n, src, err = ch.Receive(h.recvBuf)
		}
		if err != nil {
			h.log.Warn().Err(err).Msg("hub: channel read error")
			return
		}
		if n <= 0 {
			return
		}
		data := append([]byte(nil), h.recvBuf[:n]...)

		local := ch.Local()
		remote := src
		if remote == (netip.AddrPort{}) {
			remote = ch.Remote()
		}
		c, ok := h.connections.Get(remote, local)
		if !ok {
			h.log.Debug().Str("remote", remote.String()).Msg("hub: data for unregistered connection")
			continue
		}
		c.OnReceived(data)
	}
}

// cleanup removes Channels/Connections whose Connection has settled
// into a dead Error state (channel gone and not an ActiveConnection
// still attempting to reconnect).
func (h *Hub) cleanup(connections []*conn.Connection) {
	for _, c := range connections {
		if c.State() != conn.StateError {
			continue
		}
		ch := c.Channel()
		if ch != nil && ch.Alive() {
			continue
		}
		if ch != nil {
			h.channels.Remove(c.Remote(), c.Local(), nil, nil)
		}
		if !c.Active() {
			// A passive connection has nothing left to do once its
			// channel is gone; drop it so the Hub's maps don't
			// accumulate dead entries.
			h.connections.Remove(c.Remote(), c.Local(), nil, nil)
		}
	}
}
